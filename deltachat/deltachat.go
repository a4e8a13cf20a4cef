// Package deltachat is a typed layer over the deltachat-rpc-server JSONRPC
// methods used by this module.
package deltachat

import (
	"context"
	"encoding/json"

	"github.com/vipnode/stdiorpc/jsonrpc2"
)

type AccountID uint32
type ChatID uint32
type MsgID uint32

// Session is a connection that can make calls and yield events, such as a
// *jsonrpc2.Remote or an *rpcserver.Process.
type Session interface {
	jsonrpc2.Service
	NextEvent(ctx context.Context) (json.RawMessage, error)
}

var _ Session = &jsonrpc2.Remote{}

// Message is a chat message as returned by message_get_message.
type Message struct {
	ID        MsgID  `json:"id"`
	ChatID    ChatID `json:"chatId"`
	FromID    uint32 `json:"fromId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// New returns an API that makes calls over the session.
func New(session Session) *API {
	return &API{session: session}
}

// API wraps the server methods with typed arguments and results.
type API struct {
	session Session
}

// NextEvent blocks until the next event arrives and decodes it.
func (api *API) NextEvent(ctx context.Context) (*Event, error) {
	raw, err := api.session.NextEvent(ctx)
	if err != nil {
		return nil, err
	}
	return ParseEvent(raw)
}

func (api *API) SystemInfo(ctx context.Context) (map[string]string, error) {
	var info map[string]string
	if err := api.session.Call(ctx, &info, "get_system_info"); err != nil {
		return nil, err
	}
	return info, nil
}

func (api *API) AllAccountIDs(ctx context.Context) ([]AccountID, error) {
	var ids []AccountID
	if err := api.session.Call(ctx, &ids, "get_all_account_ids"); err != nil {
		return nil, err
	}
	return ids, nil
}

func (api *API) AddAccount(ctx context.Context) (AccountID, error) {
	var id AccountID
	err := api.session.Call(ctx, &id, "add_account")
	return id, err
}

// Info returns account details such as its address and configuration state.
func (api *API) Info(ctx context.Context, account AccountID) (map[string]string, error) {
	var info map[string]string
	if err := api.session.Call(ctx, &info, "get_info", account); err != nil {
		return nil, err
	}
	return info, nil
}

func (api *API) IsConfigured(ctx context.Context, account AccountID) (bool, error) {
	var ok bool
	err := api.session.Call(ctx, &ok, "is_configured", account)
	return ok, err
}

func (api *API) SetConfig(ctx context.Context, account AccountID, key string, value string) error {
	return api.session.Call(ctx, nil, "set_config", account, key, value)
}

// Configure logs in with the configured addr and mail_pw. It returns once
// configuration finished, progress is reported through events.
func (api *API) Configure(ctx context.Context, account AccountID) error {
	return api.session.Call(ctx, nil, "configure", account)
}

// StartIO starts receiving and sending for a configured account.
func (api *API) StartIO(ctx context.Context, account AccountID) error {
	return api.session.Call(ctx, nil, "start_io", account)
}

func (api *API) AcceptChat(ctx context.Context, account AccountID, chat ChatID) error {
	return api.session.Call(ctx, nil, "accept_chat", account, chat)
}

func (api *API) GetMessage(ctx context.Context, account AccountID, msg MsgID) (*Message, error) {
	var m Message
	if err := api.session.Call(ctx, &m, "message_get_message", account, msg); err != nil {
		return nil, err
	}
	return &m, nil
}

func (api *API) MarkseenMsgs(ctx context.Context, account AccountID, msgs []MsgID) error {
	if msgs == nil {
		msgs = []MsgID{}
	}
	return api.session.Call(ctx, nil, "markseen_msgs", account, msgs)
}

// SendTextMessage sends text to the chat and returns the id of the new
// message.
func (api *API) SendTextMessage(ctx context.Context, account AccountID, chat ChatID, text string) (MsgID, error) {
	var id MsgID
	// The server takes the text before the chat id.
	err := api.session.Call(ctx, &id, "misc_send_text_message", account, text, chat)
	return id, err
}
