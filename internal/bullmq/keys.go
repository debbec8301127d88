package bullmq

import "strings"

// queueKeys builds the BullMQ key names for one queue.
type queueKeys struct {
	base string
}

func newQueueKeys(prefix, name string) queueKeys {
	return queueKeys{base: prefix + ":" + name}
}

func (k queueKeys) key(suffix string) string {
	return k.base + ":" + suffix
}

func (k queueKeys) meta() string   { return k.key("meta") }
func (k queueKeys) wait() string   { return k.key("wait") }
func (k queueKeys) active() string { return k.key("active") }
func (k queueKeys) paused() string { return k.key("paused") }

func (k queueKeys) job(id string) string {
	return k.key(id)
}

func (k queueKeys) state(state RawState) (string, bool) {
	suffix, isList := stateKeySuffix(state)
	if suffix == "" {
		return "", false
	}
	return k.key(suffix), isList
}

// QueueNameFromMetaKey extracts the queue name from a "{prefix}:{name}:meta" key.
// ok is false when the key does not have that shape.
func QueueNameFromMetaKey(prefix, key string) (string, bool) {
	head := prefix + ":"
	if !strings.HasPrefix(key, head) || !strings.HasSuffix(key, ":meta") {
		return "", false
	}
	if len(key) < len(head)+len(":meta") {
		return "", false
	}
	return key[len(head) : len(key)-len(":meta")], true
}
