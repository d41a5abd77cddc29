package metric

// Tag constants
const (
	TagEnv        = "env"
	TagService    = "service"
	TagDataSource = "data_source"
	TagBackend    = "backend"
	TagTopic      = "topic"
	TagQueue      = "queue"
	TagGroup      = "group"
	TagClient     = "client"
)

func TagAsString(name string, value string) string {
	return name + ":" + value
}
