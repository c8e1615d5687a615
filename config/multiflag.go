package config

import (
	"strings"
)

// multiFlag collects the values of a repeated flag, e.g. the keys learned
// into the local filter at startup.
type multiFlag []string

func (f *multiFlag) String() string {
	return strings.Join(*f, " ")
}

func (f *multiFlag) Set(value string) error {
	for _, v := range strings.Fields(value) {
		*f = append(*f, v)
	}

	return nil
}

func (f *multiFlag) UnmarshalYAML(unmarshal func(any) error) error {
	var values []string
	if err := unmarshal(&values); err != nil {
		return err
	}

	*f = values
	return nil
}
