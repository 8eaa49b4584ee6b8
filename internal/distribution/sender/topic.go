package sender

// TopicFunc maps a distributor key to a destination topic.
type TopicFunc func(key string) string

// DefaultTopicPrefix is prepended to keys by PrefixTopic.
const DefaultTopicPrefix = "LiveData."

// PrefixTopic returns a TopicFunc prepending prefix to the key.
func PrefixTopic(prefix string) TopicFunc {
	return func(key string) string {
		return prefix + key
	}
}

func (f TopicFunc) topic(key string) string {
	if f == nil {
		return DefaultTopicPrefix + key
	}
	return f(key)
}
