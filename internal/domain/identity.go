package domain

// Identity is the bot's own account as reported by the platform.
type Identity struct {
	ID        int64
	UserName  string
	FirstName string
}

// Chat member statuses returned by the platform.
const (
	MemberCreator       = "creator"
	MemberAdministrator = "administrator"
	MemberMember        = "member"
	MemberRestricted    = "restricted"
	MemberLeft          = "left"
	MemberKicked        = "kicked"
)

// IsActiveMember reports whether status counts as belonging to the chat.
func IsActiveMember(status string) bool {
	switch status {
	case MemberCreator, MemberAdministrator, MemberMember:
		return true
	}
	return false
}

// InlineArticle is one result offered in answer to an inline query.
type InlineArticle struct {
	ID         string
	Title      string
	Text       string
	ButtonText string
	ButtonData string
}
