package fakeserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vipnode/stdiorpc/jsonrpc2"
)

// ChatMessage is the message object returned by message_get_message.
type ChatMessage struct {
	ID        uint32 `json:"id"`
	ChatID    uint32 `json:"chatId"`
	FromID    uint32 `json:"fromId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Seen      bool   `json:"-"`
}

// SentMessage is a text message sent by a client with misc_send_text_message.
type SentMessage struct {
	AccountID uint32
	ChatID    uint32
	Text      string
}

type account struct {
	config     map[string]string
	configured bool
	io         bool
	accepted   map[uint32]bool
}

// Chat is an in-memory Delta Chat account store served over JSONRPC. The RPC
// surface is registered by NewChat; the exported methods on Chat itself are
// for driving and inspecting it from tests.
type Chat struct {
	Server *Server

	// ConfigureDelay is how long configure takes before it reports success.
	ConfigureDelay time.Duration

	mu        sync.Mutex
	accounts  map[uint32]*account
	messages  map[uint32]*ChatMessage
	sent      []SentMessage
	lastAccID uint32
	lastMsgID uint32
}

// NewChat returns a Chat with its methods registered on a fresh Server.
func NewChat() *Chat {
	c := &Chat{
		Server:   &Server{},
		accounts: map[uint32]*account{},
		messages: map[uint32]*ChatMessage{},
	}
	if err := c.Server.Register("", &ChatService{c}); err != nil {
		// Only fails if ChatService has an unsupported method signature.
		panic(err)
	}
	return c
}

// Pipe serves the chat in-process and returns a Remote attached to it.
func (c *Chat) Pipe() *jsonrpc2.Remote {
	return c.Server.Pipe()
}

// Deliver simulates a message arriving from a contact into chatID of the
// account, emitting an IncomingMsg event. It returns the new message id.
func (c *Chat) Deliver(accountID uint32, chatID uint32, text string) (uint32, error) {
	c.mu.Lock()
	if _, ok := c.accounts[accountID]; !ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("unknown account: %d", accountID)
	}
	c.lastMsgID++
	msg := &ChatMessage{
		ID:        c.lastMsgID,
		ChatID:    chatID,
		FromID:    chatID + 10,
		Text:      text,
		Timestamp: time.Now().Unix(),
	}
	c.messages[msg.ID] = msg
	c.mu.Unlock()

	return msg.ID, c.Server.Emit(accountID, map[string]interface{}{
		"type":   "IncomingMsg",
		"chatId": chatID,
		"msgId":  msg.ID,
	})
}

// Sent returns the messages sent so far.
func (c *Chat) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

// Seen reports whether a message was marked seen.
func (c *Chat) Seen(msgID uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[msgID]
	return ok && msg.Seen
}

// Accepted reports whether a chat request was accepted on the account.
func (c *Chat) Accepted(accountID uint32, chatID uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.accounts[accountID]
	return ok && acc.accepted[chatID]
}

// IORunning reports whether start_io was called for the account.
func (c *Chat) IORunning(accountID uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.accounts[accountID]
	return ok && acc.io
}

func (c *Chat) account(accountID uint32) (*account, error) {
	acc, ok := c.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d does not exist", accountID)
	}
	return acc, nil
}

func (c *Chat) info(accountID uint32, format string, args ...interface{}) {
	c.Server.Emit(accountID, map[string]interface{}{
		"type": "Info",
		"msg":  fmt.Sprintf(format, args...),
	})
}

// ChatService is the RPC surface of Chat. Method names map to the
// deltachat-rpc-server names, e.g. MessageGetMessage -> message_get_message.
type ChatService struct {
	chat *Chat
}

func (s *ChatService) GetSystemInfo() map[string]string {
	return map[string]string{
		"deltachat_core_version": "v1.86.0",
		"sqlite_version":         "3.38.0",
		"arch":                   "64",
		"num_cpus":               "4",
	}
}

// GetAllAccountIds is spelled so that it maps to get_all_account_ids.
func (s *ChatService) GetAllAccountIds() []uint32 {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint32, 0, len(c.accounts))
	for id := range c.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *ChatService) AddAccount() uint32 {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAccID++
	c.accounts[c.lastAccID] = &account{
		config:   map[string]string{},
		accepted: map[uint32]bool{},
	}
	return c.lastAccID
}

func (s *ChatService) GetInfo(accountID uint32) (map[string]string, error) {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, err := c.account(accountID)
	if err != nil {
		return nil, err
	}
	info := map[string]string{
		"is_configured":   fmt.Sprint(acc.configured),
		"number_of_chats": fmt.Sprint(len(acc.accepted)),
	}
	if addr, ok := acc.config["addr"]; ok {
		info["addr"] = addr
	}
	return info, nil
}

func (s *ChatService) IsConfigured(accountID uint32) (bool, error) {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, err := c.account(accountID)
	if err != nil {
		return false, err
	}
	return acc.configured, nil
}

func (s *ChatService) SetConfig(accountID uint32, key string, value *string) error {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, err := c.account(accountID)
	if err != nil {
		return err
	}
	if value == nil {
		delete(acc.config, key)
		return nil
	}
	acc.config[key] = *value
	return nil
}

func (s *ChatService) Configure(accountID uint32) error {
	c := s.chat
	c.mu.Lock()
	acc, err := c.account(accountID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	addr, pw := acc.config["addr"], acc.config["mail_pw"]
	c.mu.Unlock()

	if addr == "" || pw == "" {
		return errors.New("missing addr or mail_pw")
	}
	c.info(accountID, "configure: connecting to imap for %s", addr)
	if c.ConfigureDelay > 0 {
		time.Sleep(c.ConfigureDelay)
	}

	c.info(accountID, "configure: done")

	c.mu.Lock()
	acc.configured = true
	acc.io = true
	c.mu.Unlock()
	return nil
}

func (s *ChatService) StartIO(accountID uint32) error {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, err := c.account(accountID)
	if err != nil {
		return err
	}
	if !acc.configured {
		return errors.New("account is not configured")
	}
	acc.io = true
	return nil
}

func (s *ChatService) AcceptChat(accountID uint32, chatID uint32) error {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, err := c.account(accountID)
	if err != nil {
		return err
	}
	acc.accepted[chatID] = true
	return nil
}

func (s *ChatService) MessageGetMessage(accountID uint32, msgID uint32) (*ChatMessage, error) {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.account(accountID); err != nil {
		return nil, err
	}
	msg, ok := c.messages[msgID]
	if !ok {
		return nil, fmt.Errorf("message %d does not exist", msgID)
	}
	cp := *msg
	return &cp, nil
}

func (s *ChatService) MarkseenMsgs(accountID uint32, msgIDs []uint32) error {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.account(accountID); err != nil {
		return err
	}
	for _, id := range msgIDs {
		if msg, ok := c.messages[id]; ok {
			msg.Seen = true
		}
	}
	return nil
}

func (s *ChatService) MiscSendTextMessage(accountID uint32, text string, chatID uint32) (uint32, error) {
	c := s.chat
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.account(accountID); err != nil {
		return 0, err
	}
	c.lastMsgID++
	c.messages[c.lastMsgID] = &ChatMessage{
		ID:        c.lastMsgID,
		ChatID:    chatID,
		FromID:    1,
		Text:      text,
		Timestamp: time.Now().Unix(),
		Seen:      true,
	}
	c.sent = append(c.sent, SentMessage{
		AccountID: accountID,
		ChatID:    chatID,
		Text:      text,
	})
	return c.lastMsgID, nil
}
