package board

import "strings"

// BindingPrefix namespaces board channels on the realtime routing fabric.
const BindingPrefix = "board."

var bindingReplacer = strings.NewReplacer("-", ".", "_", "#")

// ToBinding maps a channel id to the realtime routing key that carries its events.
// Routing keys use '.' and '#' as structural separators, so '-' and '_' are rewritten;
// every other character passes through untouched.
func ToBinding(channelID string) string {
	return BindingPrefix + bindingReplacer.Replace(channelID)
}
