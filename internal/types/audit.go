package types

// AuditAction describes what an operation did to an entity
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionRead   AuditAction = "READ"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionList   AuditAction = "LIST"
)

func (a AuditAction) String() string {
	return string(a)
}

func (a AuditAction) Validate() bool {
	switch a {
	case AuditActionCreate, AuditActionRead, AuditActionUpdate, AuditActionDelete, AuditActionList:
		return true
	}
	return false
}

// IsMutation reports whether the action changes persisted state
func (a AuditAction) IsMutation() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete:
		return true
	}
	return false
}

// AuditStatus records whether the audited operation succeeded
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusFailure AuditStatus = "FAILURE"
)

func (s AuditStatus) String() string {
	return string(s)
}
