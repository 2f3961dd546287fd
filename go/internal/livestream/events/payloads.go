package events

// Payload types shared between the game server, the gateway and the control service.

// Channel is a logical bus channel name.
type Channel string

const (
	ChannelControl         Channel = "game.server-video-control"
	ChannelPollDeclaration Channel = "game.new-poll"
	ChannelPollVotes       Channel = "game.poll-votes"
	ChannelPollResults     Channel = "game.poll-results"
	ChannelUIReset         Channel = "game.ui-reset"
	ChannelClientStatus    Channel = "game.client-video-control"
	ChannelChat            Channel = "game.chat"
	ChannelCommentary      Channel = "game.commentary"
	ChannelMatchStats      Channel = "game.match-stats"
	ChannelReactions       Channel = "game.reactions"
)

// UIChannels are the channels widgets render from.
var UIChannels = []Channel{
	ChannelPollDeclaration,
	ChannelPollResults,
	ChannelUIReset,
	ChannelClientStatus,
	ChannelChat,
	ChannelCommentary,
	ChannelMatchStats,
	ChannelReactions,
}

// ControlType identifies a timeline control command.
type ControlType string

const (
	ControlStartStream    ControlType = "START_STREAM"
	ControlSeek           ControlType = "SEEK"
	ControlEndStream      ControlType = "END_STREAM"
	ControlBotChat        ControlType = "BOT_CHAT"
	ControlOnDemandScript ControlType = "ON_DEMAND_SCRIPT"
)

// ControlParams carries the optional arguments of a control command.
type ControlParams struct {
	PlaybackTime *int64 `json:"playbackTime,omitempty"`
	ScriptName   string `json:"scriptName,omitempty"`
	Emoji        string `json:"emoji,omitempty"`
}

// ControlCommand is published by the UI on ChannelControl.
type ControlCommand struct {
	Type   ControlType   `json:"type"`
	Params ControlParams `json:"params"`
}

// PollType distinguishes trivia polls from the featured opinion poll.
type PollType string

const (
	PollTypeSide     PollType = "side"
	PollTypeFeatured PollType = "featuredStreamPoll"
)

// Known reports whether the aggregator handles polls of this type.
func (t PollType) Known() bool {
	return t == PollTypeSide || t == PollTypeFeatured
}

// PollOption is a single answer of a poll declaration.
type PollOption struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// PollDeclaration is published on ChannelPollDeclaration when a poll opens.
type PollDeclaration struct {
	ID            int          `json:"id"`
	Title         string       `json:"title"`
	Options       []PollOption `json:"options"`
	VictoryPoints *int         `json:"victoryPoints,omitempty"`
	PollType      PollType     `json:"pollType"`
}

// Vote is published on ChannelPollVotes by viewers, or by the server for simulated votes.
type Vote struct {
	PollID    int      `json:"pollId"`
	ChoiceID  int      `json:"choiceId"`
	PollType  PollType `json:"pollType"`
	Simulated bool     `json:"simulated,omitempty"`
}

// PollCloseSignal is a scripted (or externally published) request to resolve a poll.
// Side polls reveal CorrectOption, featured polls carry IsFinalSignal.
type PollCloseSignal struct {
	ID            int      `json:"id"`
	PollType      PollType `json:"pollType"`
	CorrectOption *int     `json:"correctOption,omitempty"`
	IsFinalSignal bool     `json:"isFinalSignal,omitempty"`
}

// OptionScore is one row of a results message.
type OptionScore struct {
	ID    int `json:"id"`
	Score int `json:"score"`
}

// PollResults is published on ChannelPollResults, both as interim and final results.
type PollResults struct {
	ID            int           `json:"id"`
	Options       []OptionScore `json:"options"`
	PollType      PollType      `json:"pollType"`
	CorrectOption *int          `json:"correctOption,omitempty"`
	IsFinal       bool          `json:"isFinal,omitempty"`
}

// UIReset tells each widget family to clear its state.
type UIReset struct {
	ResetLiveStreamPoll  bool `json:"resetLiveStreamPoll"`
	ResetPollsWidget     bool `json:"resetPollsWidget"`
	ResetCommentary      bool `json:"resetCommentary"`
	ResetChat            bool `json:"resetChat"`
	ResetProductShowcase bool `json:"resetProductShowcase"`
}

// StatusType is the type field of client status messages.
type StatusType string

const (
	StatusPeriodic    StatusType = "STATUS"
	StatusStartStream StatusType = "START_STREAM"
	StatusSeek        StatusType = "SEEK"
	StatusEndStream   StatusType = "END_STREAM"
)

// ClientStatus is published on ChannelClientStatus so players can sync video playback.
type ClientStatus struct {
	Type   StatusType `json:"type"`
	Params any        `json:"params"`
}

// PlaybackStatus is the params of a periodic STATUS broadcast.
type PlaybackStatus struct {
	PlaybackTime int64 `json:"playbackTime"`
	VideoStarted bool  `json:"videoStarted"`
	VideoEnded   bool  `json:"videoEnded"`
}

// SeekStatus is the params of a SEEK broadcast.
type SeekStatus struct {
	PlaybackTime int64 `json:"playbackTime"`
}

// ChatMessage is the subset of a chat payload the server cares about.
type ChatMessage struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// ProductEnded is published on the product showcase channel when a product leaves the stream.
type ProductEnded struct {
	Type            string `json:"type"`
	ID              string `json:"id"`
	OriginalEndTime int64  `json:"originalEndTime"`
}

// ProductEndedType is the type tag of ProductEnded.
const ProductEndedType = "PRODUCT_ENDED"
