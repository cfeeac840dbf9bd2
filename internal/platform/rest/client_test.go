package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

type ClientSuite struct {
	suite.Suite

	server *httptest.Server
	client *Client
	ctx    context.Context

	// handler is swapped per test; last holds the most recent request.
	handler http.HandlerFunc
	last    *recordedRequest
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.last = nil
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.last = &recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		}
		s.handler(w, r)
	}))
	s.client = New(Config{
		BaseURL: s.server.URL + "/",
		Token:   "bot-token",
		GuildID: "g-1",
	})
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) respond(status int, payload any) {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if payload != nil {
			_ = json.NewEncoder(w).Encode(payload)
		}
	}
}

func (s *ClientSuite) TestMemberRequestShape() {
	s.respond(http.StatusOK, platform.Member{
		ID:          "m-1",
		DisplayName: "Rita",
		Roles:       []model.RoleID{"r-member"},
	})

	m, err := s.client.Member(s.ctx, "m-1")
	s.Require().NoError(err)
	s.Equal(model.MemberID("m-1"), m.ID)
	s.Equal("Rita", m.DisplayName)
	s.Equal([]model.RoleID{"r-member"}, m.Roles)

	s.Equal(http.MethodGet, s.last.Method)
	s.Equal("/guilds/g-1/members/m-1", s.last.Path)
	s.Equal("Bot bot-token", s.last.Auth)
}

func (s *ClientSuite) TestGuildOwner() {
	s.respond(http.StatusOK, map[string]string{"owner_id": "m-owner"})

	owner, err := s.client.GuildOwner(s.ctx)
	s.Require().NoError(err)
	s.Equal(model.MemberID("m-owner"), owner)
	s.Equal("/guilds/g-1", s.last.Path)
}

func (s *ClientSuite) TestNotFoundMapsToSentinel() {
	s.respond(http.StatusNotFound, nil)

	_, err := s.client.Member(s.ctx, "ghost")
	s.ErrorIs(err, platform.ErrNotFound)
}

func (s *ClientSuite) TestForbiddenMapsToSentinel() {
	s.respond(http.StatusForbidden, nil)

	err := s.client.Ban(s.ctx, "m-1", "spam")
	s.ErrorIs(err, platform.ErrForbidden)
}

func (s *ClientSuite) TestServerErrorIncludesStatusAndBody() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}

	err := s.client.Kick(s.ctx, "m-1", "")
	s.Require().Error(err)
	s.Contains(err.Error(), "HTTP 500")
	s.Contains(err.Error(), "boom")
}

func (s *ClientSuite) TestAddRemoveRolePaths() {
	s.Require().NoError(s.client.AddRole(s.ctx, "m-1", "r-admin"))
	s.Equal(http.MethodPut, s.last.Method)
	s.Equal("/guilds/g-1/members/m-1/roles/r-admin", s.last.Path)

	s.Require().NoError(s.client.RemoveRole(s.ctx, "m-1", "r-admin"))
	s.Equal(http.MethodDelete, s.last.Method)
	s.Equal("/guilds/g-1/members/m-1/roles/r-admin", s.last.Path)
}

func (s *ClientSuite) TestKickSendsReason() {
	s.Require().NoError(s.client.Kick(s.ctx, "m-1", "policy"))
	s.Equal(http.MethodDelete, s.last.Method)
	s.Equal("/guilds/g-1/members/m-1", s.last.Path)
	s.JSONEq(`{"reason":"policy"}`, string(s.last.Body))
}

func (s *ClientSuite) TestResolveChannelMentionSkipsLookup() {
	s.respond(http.StatusOK, platform.Channel{ID: "ch-9", Name: "general", Kind: platform.ChannelText})

	ch, err := s.client.ResolveChannel(s.ctx, "<#ch-9>")
	s.Require().NoError(err)
	s.Equal(model.ChannelID("ch-9"), ch.ID)
	s.Equal("/channels/ch-9", s.last.Path)
}

func (s *ClientSuite) TestResolveChannelByName() {
	s.respond(http.StatusOK, platform.Channel{ID: "ch-9", Name: "general", Kind: platform.ChannelText})

	ch, err := s.client.ResolveChannel(s.ctx, "general")
	s.Require().NoError(err)
	s.Equal("general", ch.Name)
	s.Equal("/guilds/g-1/channels/by-name/general", s.last.Path)
}

func (s *ClientSuite) TestResolveRoleMentionNeedsNoRequest() {
	id, err := s.client.ResolveRole(s.ctx, "<@&r-55>")
	s.Require().NoError(err)
	s.Equal(model.RoleID("r-55"), id)
	s.Nil(s.last)
}

func (s *ClientSuite) TestFindCategoryRejectsNonCategory() {
	s.respond(http.StatusOK, platform.Channel{ID: "ch-1", Name: "general", Kind: platform.ChannelText})

	_, err := s.client.FindCategory(s.ctx, "general")
	s.ErrorIs(err, platform.ErrNotFound)
}

func (s *ClientSuite) TestCreateChannelBody() {
	s.respond(http.StatusOK, platform.Channel{ID: "ch-new", Name: "lounge", Kind: platform.ChannelVoice})

	ch, err := s.client.CreateChannel(s.ctx, platform.CreateChannelRequest{
		Name:       "lounge",
		CategoryID: "cat-1",
		Voice:      true,
		Permissions: platform.ChannelPermissions{
			AllowRoles:   []model.RoleID{"r-member"},
			AllowMembers: []model.MemberID{"m-1"},
		},
	})
	s.Require().NoError(err)
	s.Equal(model.ChannelID("ch-new"), ch.ID)
	s.Equal(http.MethodPost, s.last.Method)
	s.Equal("/guilds/g-1/channels", s.last.Path)
	s.JSONEq(`{
		"name": "lounge",
		"category_id": "cat-1",
		"voice": true,
		"allow_roles": ["r-member"],
		"allow_members": ["m-1"]
	}`, string(s.last.Body))
}

func (s *ClientSuite) TestCreateCategoryBody() {
	s.respond(http.StatusOK, platform.Channel{ID: "cat-new", Name: "masks", Kind: platform.ChannelCategory})

	_, err := s.client.CreateCategory(s.ctx, "masks", platform.ChannelPermissions{})
	s.Require().NoError(err)
	s.JSONEq(`{"name":"masks","category":true}`, string(s.last.Body))
}

func (s *ClientSuite) TestHistoryLimit() {
	s.respond(http.StatusOK, []platform.Message{{ID: "1"}, {ID: "2"}})

	msgs, err := s.client.History(s.ctx, "ch-1", 2)
	s.Require().NoError(err)
	s.Len(msgs, 2)
	s.Equal("/channels/ch-1/messages?limit=2", s.last.Path)

	_, err = s.client.History(s.ctx, "ch-1", 0)
	s.Require().NoError(err)
	s.Equal("/channels/ch-1/messages", s.last.Path)
}

func (s *ClientSuite) TestPurgeMessages() {
	s.respond(http.StatusOK, map[string]int{"deleted": 7})

	n, err := s.client.PurgeMessages(s.ctx, "ch-1", 10)
	s.Require().NoError(err)
	s.Equal(7, n)
	s.Equal("/channels/ch-1/messages/purge", s.last.Path)
	s.JSONEq(`{"limit":10}`, string(s.last.Body))
}

func (s *ClientSuite) TestWebhookLifecyclePaths() {
	s.respond(http.StatusOK, platform.Webhook{ID: "wh-1", ChannelID: "ch-1", Token: "tok"})

	wh, err := s.client.CreateWebhook(s.ctx, "ch-1", "Masker", nil)
	s.Require().NoError(err)
	s.Equal("/channels/ch-1/webhooks", s.last.Path)

	s.respond(http.StatusOK, nil)
	s.Require().NoError(s.client.SendWebhook(s.ctx, wh, platform.Outgoing{
		Content:  "hello",
		Username: "user_ABCDEF123456",
	}))
	s.Equal("/webhooks/wh-1/tok", s.last.Path)
	s.JSONEq(`{"content":"hello","username":"user_ABCDEF123456"}`, string(s.last.Body))

	s.Require().NoError(s.client.DeleteWebhook(s.ctx, wh))
	s.Equal(http.MethodDelete, s.last.Method)
	s.Equal("/webhooks/wh-1/tok", s.last.Path)
}

func (s *ClientSuite) TestSendMessageEncodesFiles() {
	s.Require().NoError(s.client.SendMessage(s.ctx, "ch-1", platform.Outgoing{
		Content: "see attached",
		Files:   []platform.File{{Name: "a.txt", Data: []byte("hi")}},
	}))
	s.Equal("/channels/ch-1/messages", s.last.Path)
	s.JSONEq(`{"content":"see attached","files":[{"name":"a.txt","data":"aGk="}]}`, string(s.last.Body))
}

func (s *ClientSuite) TestFetchAttachment() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}
	data, err := s.client.FetchAttachment(s.ctx, s.server.URL+"/files/a.png")
	s.Require().NoError(err)
	s.Equal([]byte("png-bytes"), data)

	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
	_, err = s.client.FetchAttachment(s.ctx, s.server.URL+"/files/missing.png")
	s.Require().Error(err)
	s.Contains(err.Error(), "HTTP 404")
}
