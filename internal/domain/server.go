package domain

type (
	ServerID  string
	ChannelID string
)

type ServerVisibility string

const (
	ServerPublic    ServerVisibility = "public"
	ServerPrivate   ServerVisibility = "private"
	ServerInvisible ServerVisibility = "invisible"
)

type ChannelVisibility string

const (
	ChannelPublic   ChannelVisibility = "public"
	ChannelPrivate  ChannelVisibility = "private"
	ChannelReadonly ChannelVisibility = "readonly"
)

// Server is a top-level community space. Its channels are the channels
// whose ServerID points at it; exactly one of them is the lobby.
type Server struct {
	ID              ServerID         `json:"id"`
	Name            string           `json:"name"`
	OwnerID         UserID           `json:"ownerId"`
	Visibility      ServerVisibility `json:"visibility"`
	LobbyID         ChannelID        `json:"lobbyId"`
	MemberThreshold PermissionLevel  `json:"memberThreshold,omitempty"`
}

// Channel is a joinable room inside a server or a category grouping others.
type Channel struct {
	ID         ChannelID         `json:"id"`
	ServerID   ServerID          `json:"serverId"`
	ParentID   ChannelID         `json:"parentId,omitempty"`
	Name       string            `json:"name"`
	Visibility ChannelVisibility `json:"visibility"`
	IsLobby    bool              `json:"isLobby"`
	IsCategory bool              `json:"isCategory"`
	Position   int               `json:"position"`
}

func (s *Server) Validate() error {
	if s.ID == "" {
		return Validation("server.validate", "server_id_empty", "server id is empty")
	}
	if s.LobbyID == "" {
		return Validation("server.validate", "lobby_missing", "server has no lobby")
	}
	switch s.Visibility {
	case ServerPublic, ServerPrivate, ServerInvisible:
	default:
		return Validation("server.validate", "unknown_visibility", "unknown server visibility")
	}
	return nil
}

// Validate checks the invariants a channel can verify on its own. The
// same-server rule for parents is checked by the catalog owner.
func (c *Channel) Validate() error {
	if c.ID == "" || c.ServerID == "" {
		return Validation("channel.validate", "channel_id_empty", "channel id or server id is empty")
	}
	if c.IsLobby && c.ParentID != "" {
		return Validation("channel.validate", "lobby_has_parent", "lobby channel cannot have a parent")
	}
	if c.IsLobby && c.IsCategory {
		return Validation("channel.validate", "lobby_is_category", "lobby channel cannot be a category")
	}
	if c.ParentID == c.ID {
		return Validation("channel.validate", "self_parent", "channel cannot be its own parent")
	}
	switch c.Visibility {
	case ChannelPublic, ChannelPrivate, ChannelReadonly:
	default:
		return Validation("channel.validate", "unknown_visibility", "unknown channel visibility")
	}
	return nil
}

func (s *Server) Clone() *Server {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
