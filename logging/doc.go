/*
Package logging initializes the application log and provides the Logger
interface used by the gossip loops.

# Application Log

The application log uses the logrus package:

https://github.com/sirupsen/logrus

To send messages to the application log, import logrus and use its
methods. Example:

	import log "github.com/sirupsen/logrus"

	func doSomething() {
	    log.Errorf("nothing to do")
	}

During startup initialization, it is possible to set the level, redirect
the log output from the default /dev/stderr to another file, select JSON
output and set a common prefix for each log entry. Setting the prefix may
help to distinguish several switches logging into the same stream.

# Logger

Components that are exercised by tests log through the Logger interface.
The default implementation, returned by New, writes to the standard logrus
logger, the loggingtest package provides one that lets tests wait for
expected entries.
*/
package logging
