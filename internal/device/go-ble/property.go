package goble

import (
	"strings"

	"github.com/go-ble/ble"
)

// propertyNames lists characteristic property flags in bit order
var propertyNames = []struct {
	value ble.Property
	name  string
}{
	{ble.CharBroadcast, "broadcast"},
	{ble.CharRead, "read"},
	{ble.CharWriteNR, "write-without-response"},
	{ble.CharWrite, "write"},
	{ble.CharNotify, "notify"},
	{ble.CharIndicate, "indicate"},
	{ble.CharSignedWrite, "signed-write"},
	{ble.CharExtended, "extended"},
}

// PropertyNames returns a comma-separated list of the property flags set in p
func PropertyNames(p ble.Property) string {
	var names []string
	for _, prop := range propertyNames {
		if p&prop.value != 0 {
			names = append(names, prop.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// ParseProperties converts a comma-separated list such as "read,notify" to ble.Property flags.
// Unknown names are ignored.
func ParseProperties(props string) ble.Property {
	var property ble.Property
	for _, part := range strings.Split(props, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		for _, prop := range propertyNames {
			if prop.name == part {
				property |= prop.value
			}
		}
	}
	return property
}
