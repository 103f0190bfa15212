package chat

// MaxTextLength bounds the text of a single message, in runes.
const MaxTextLength = 4000

type Command interface {
	ChannelID() ChannelID
}

// JoinCommand asks to enter the conversation between From and To.
type JoinCommand struct {
	From UserID `json:"from" validate:"required,excludes=_"`
	To   UserID `json:"to" validate:"required,excludes=_"`
}

func (c JoinCommand) ChannelID() ChannelID {
	return DeriveChannel(c.From, c.To)
}

type LeaveCommand struct {
	From UserID `json:"from" validate:"required,excludes=_"`
	To   UserID `json:"to" validate:"required,excludes=_"`
}

func (c LeaveCommand) ChannelID() ChannelID {
	return DeriveChannel(c.From, c.To)
}

type SendMessageCommand struct {
	From UserID `json:"from" validate:"required,excludes=_"`
	To   UserID `json:"to" validate:"required,excludes=_"`
	Text string `json:"text" validate:"notblank,max=4000"`
}

func (c SendMessageCommand) ChannelID() ChannelID {
	return DeriveChannel(c.From, c.To)
}

// GetHistoryCommand reads a page of the conversation between UserA and UserB.
// A zero Limit means the configured default.
type GetHistoryCommand struct {
	UserA  UserID  `json:"userA" validate:"required,excludes=_"`
	UserB  UserID  `json:"userB" validate:"required,excludes=_"`
	Limit  int     `json:"limit" validate:"gte=0"`
	Before *Cursor `json:"before"`
}

func (c GetHistoryCommand) ChannelID() ChannelID {
	return DeriveChannel(c.UserA, c.UserB)
}

type SearchCommand struct {
	UserA UserID `json:"userA" validate:"required,excludes=_"`
	UserB UserID `json:"userB" validate:"required,excludes=_"`
	Terms string `json:"q" validate:"notblank,max=256"`
	Limit int    `json:"limit" validate:"gte=0"`
}

func (c SearchCommand) ChannelID() ChannelID {
	return DeriveChannel(c.UserA, c.UserB)
}
