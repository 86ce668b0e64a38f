package types

// Status is the lifecycle state of a persisted record
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Validate() bool {
	switch s {
	case StatusPublished, StatusArchived, StatusDeleted:
		return true
	}
	return false
}
