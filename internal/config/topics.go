package config

const (
	// TopicIndexRebuild carries full index rebuild requests to the index worker.
	TopicIndexRebuild = "index.rebuild"

	// ChannelIndexWorker is the NSQ channel the index worker consumes on.
	ChannelIndexWorker = "indexer"
)
