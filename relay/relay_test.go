package relay

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/teamrelay/commands"
	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/policy"
	"github.com/c360studio/teamrelay/storage"
	"github.com/c360studio/teamrelay/transport"
)

// scriptedChat records every outbound call so scenarios can assert on the
// exact conversation.
type scriptedChat struct {
	mu      sync.Mutex
	texts   map[directory.Identity][]string
	docs    map[directory.Identity][]string
	prompts []promptRecord
	edits   []string
}

type promptRecord struct {
	to      directory.Identity
	prompt  string
	options []transport.Choice
}

func newScriptedChat() *scriptedChat {
	return &scriptedChat{
		texts: make(map[directory.Identity][]string),
		docs:  make(map[directory.Identity][]string),
	}
}

func (c *scriptedChat) SendText(_ context.Context, to directory.Identity, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts[to] = append(c.texts[to], text)
	return nil
}

func (c *scriptedChat) SendDocument(_ context.Context, to directory.Identity, docRef, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[to] = append(c.docs[to], docRef)
	return nil
}

func (c *scriptedChat) ForwardAsIs(_ context.Context, to directory.Identity, sourceRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts[to] = append(c.texts[to], "fwd:"+sourceRef)
	return nil
}

func (c *scriptedChat) PresentChoice(_ context.Context, to directory.Identity, prompt string, options []transport.Choice) (transport.PromptRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, promptRecord{to: to, prompt: prompt, options: options})
	return transport.PromptRef{To: to, MessageID: uuid.NewString()}, nil
}

func (c *scriptedChat) EditPrompt(_ context.Context, _ transport.PromptRef, text string, _ []transport.Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, text)
	return nil
}

func (c *scriptedChat) lastPrompt(t *testing.T) promptRecord {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.prompts, "no prompt was presented")
	return c.prompts[len(c.prompts)-1]
}

// callbackData finds the option Data with the given prefix on the latest
// prompt, e.g. the confirm token.
func (c *scriptedChat) callbackData(t *testing.T, prefix string) string {
	t.Helper()
	p := c.lastPrompt(t)
	for _, opt := range p.options {
		if strings.HasPrefix(opt.Data, prefix) {
			return opt.Data
		}
	}
	t.Fatalf("no option with prefix %q on prompt %q", prefix, p.prompt)
	return ""
}

func (c *scriptedChat) textsFor(to directory.Identity) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts[to]...)
}

func (c *scriptedChat) lastAnswer(t *testing.T, to directory.Identity) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.edits) > 0 {
		return c.edits[len(c.edits)-1]
	}
	texts := c.texts[to]
	require.NotEmpty(t, texts, "no answer reached %d", to)
	return texts[len(texts)-1]
}

const testAdmin directory.Identity = 1

type fixture struct {
	relay *Relay
	chat  *scriptedChat
	dir   *directory.Directory
	mutes *storage.MemMutes
}

func newFixture(t *testing.T, members map[directory.Role][]directory.Identity) *fixture {
	t.Helper()

	dir := directory.New()
	for role, ids := range members {
		for _, id := range ids {
			_, err := dir.Add(role, id)
			require.NoError(t, err)
		}
	}

	chat := newScriptedChat()
	handles := storage.NewMemHandles()
	mutes := storage.NewMemMutes()
	registry := commands.NewRegistry(commands.Deps{
		Dir:     dir,
		Handles: handles,
		Mutes:   mutes,
		AdminID: testAdmin,
	})

	r := New(dir, policy.Default(), handles, mutes, chat, registry,
		Options{AdminID: testAdmin}, nil)

	return &fixture{relay: r, chat: chat, dir: dir, mutes: mutes}
}

func (f *fixture) message(sender directory.Identity, text string) {
	f.relay.HandleEvent(context.Background(), transport.Event{
		Kind:   transport.EventMessage,
		Sender: sender,
		Text:   text,
	})
}

func (f *fixture) callback(sender directory.Identity, data string) {
	f.relay.HandleEvent(context.Background(), transport.Event{
		Kind:   transport.EventCallback,
		Sender: sender,
		Data:   data,
	})
}

func TestFlow_DefaultRouteConfirmAndDispatch(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200, 201},
		directory.RoleWord:   {300},
	})

	f.message(100, "chapter five is ready")

	prompt := f.chat.lastPrompt(t)
	assert.Equal(t, directory.Identity(100), prompt.to)
	assert.Contains(t, prompt.prompt, "mcqs, word")
	assert.Contains(t, prompt.prompt, "3 recipients")

	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	assert.Equal(t, []string{"chapter five is ready"}, f.chat.textsFor(200))
	assert.Equal(t, []string{"chapter five is ready"}, f.chat.textsFor(201))
	assert.Equal(t, []string{"chapter five is ready"}, f.chat.textsFor(300))
	assert.Contains(t, f.chat.lastAnswer(t, 100), "Sent to 3 recipient(s)")
}

func TestFlow_ConfirmIsExactlyOnce(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
	})

	f.message(100, "hello")
	token := f.chat.callbackData(t, callbackConfirm)

	f.callback(100, token)
	f.callback(100, token)

	// Delivered once despite the double tap.
	assert.Len(t, f.chat.textsFor(200), 1)
	assert.Contains(t, f.chat.lastAnswer(t, 100), "no longer valid")
}

func TestFlow_TokenOnlyResolvableByOwner(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
	})

	f.message(100, "hello")
	confirmData := f.chat.callbackData(t, callbackConfirm)
	cancelData := f.chat.callbackData(t, callbackCancel)

	// Another identity tapping the owner's token moves nothing.
	f.callback(666, confirmData)
	assert.Empty(t, f.chat.textsFor(200))
	assert.Contains(t, f.chat.lastAnswer(t, 666), "no longer valid")

	f.callback(666, cancelData)
	assert.Contains(t, f.chat.lastAnswer(t, 666), "Nothing to cancel")

	// The owner's confirm still works afterwards.
	f.callback(100, confirmData)
	assert.Equal(t, []string{"hello"}, f.chat.textsFor(200))
	assert.Contains(t, f.chat.lastAnswer(t, 100), "Sent to 1 recipient(s)")
}

func TestFlow_CancelThenCancelAgain(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
	})

	f.message(100, "hello")
	cancelData := f.chat.callbackData(t, callbackCancel)

	f.callback(100, cancelData)
	assert.Contains(t, f.chat.lastAnswer(t, 100), "Cancelled")
	assert.Empty(t, f.chat.textsFor(200))

	f.callback(100, cancelData)
	assert.Contains(t, f.chat.lastAnswer(t, 100), "Nothing to cancel")
}

func TestFlow_NewTriggerRejectedWhileAwaitingConfirmation(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
	})

	f.message(100, "first message")
	token := f.chat.callbackData(t, callbackConfirm)

	f.message(100, "second message")
	assert.Contains(t, f.chat.lastAnswer(t, 100), "awaiting confirmation")

	// The first pending action is still confirmable.
	f.callback(100, token)
	assert.Equal(t, []string{"first message"}, f.chat.textsFor(200))
}

func TestFlow_TeamBroadcastFromChecker(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleChecker: {100, 110},
		directory.RoleTara:    {500},
		directory.RoleWriter:  {600},
	})

	f.message(100, "-team proofs are done")
	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	assert.Equal(t, []string{"proofs are done"}, f.chat.textsFor(110))
	assert.Equal(t, []string{"proofs are done"}, f.chat.textsFor(500))
	assert.Contains(t, f.chat.lastAnswer(t, 100), "Sent to 2 recipient(s)")
	assert.Empty(t, f.chat.textsFor(600))
	assert.NotContains(t, f.chat.textsFor(100), "proofs are done") // sender excluded
}

func TestFlow_UnknownHandleEndsFlowCleanly(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
	})

	f.message(100, "-@ghost are you there")

	assert.Contains(t, f.chat.lastAnswer(t, 100), "don't know that handle")
	assert.Empty(t, f.chat.prompts)
	_, open := f.relay.sessions.Get(100)
	assert.False(t, open)
}

func TestFlow_HandleRecordedFromTraffic(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
	})

	// The target messages the relay once, which records their handle.
	f.relay.HandleEvent(context.Background(), transport.Event{
		Kind: transport.EventMessage, Sender: 200, Handle: "Alice", Text: "/help",
	})

	f.message(100, "-@alice ping")
	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	assert.Contains(t, f.chat.textsFor(200), "ping")
}

func TestFlow_AnonymousFeedback(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {200},
		directory.RoleKing:   {300},
	})

	// Sender 999 holds no role.
	f.message(999, "the deadlines are too tight")

	prompt := f.chat.lastPrompt(t)
	assert.Contains(t, prompt.prompt, "anonymous")

	f.callback(999, f.chat.callbackData(t, callbackConfirm))

	require.Len(t, f.chat.textsFor(200), 1)
	assert.Equal(t, "Anonymous feedback:\nthe deadlines are too tight", f.chat.textsFor(200)[0])
	assert.Equal(t, "Anonymous feedback:\nthe deadlines are too tight", f.chat.textsFor(300)[0])

	// Admin gets the identity disclosure.
	disclosed := false
	for _, text := range f.chat.textsFor(testAdmin) {
		if strings.Contains(text, "sent by 999") {
			disclosed = true
		}
	}
	assert.True(t, disclosed, "admin never received the disclosure")
}

func TestFlow_RoleChoiceThenDispatch(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleTara:   {100, 500},
		directory.RoleMCQs:   {200},
		directory.RoleWord:   {300},
	})

	f.message(100, "-team wrapping up")

	choice := f.chat.lastPrompt(t)
	assert.Contains(t, choice.prompt, "several roles")
	require.Len(t, choice.options, 2)

	f.callback(100, callbackRole+"tara")
	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	// Acting as tara, the broadcast reaches only the other tara member.
	assert.Equal(t, []string{"wrapping up"}, f.chat.textsFor(500))
	assert.Empty(t, f.chat.textsFor(200))
	assert.Empty(t, f.chat.textsFor(300))
}

func TestFlow_PlainMessageRoleChoiceUsesChosenDefaultRoute(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleTara:   {100, 500},
		directory.RoleMCQs:   {200},
		directory.RoleWord:   {300},
	})

	f.message(100, "draft attached below")

	choice := f.chat.lastPrompt(t)
	assert.Contains(t, choice.prompt, "several roles")

	f.callback(100, callbackRole+"writer")
	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	// writer's default route: mcqs and word members, sender excluded.
	assert.Equal(t, []string{"draft attached below"}, f.chat.textsFor(200))
	assert.Equal(t, []string{"draft attached below"}, f.chat.textsFor(300))
	assert.Empty(t, f.chat.textsFor(500))
}

func TestFlow_RoleChoiceRejectsOutsideCandidate(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleTara:   {100, 500},
	})

	f.message(100, "-team status")
	f.callback(100, callbackRole+"king")

	assert.Contains(t, f.chat.lastAnswer(t, 100), "not one of the choices")
	s, ok := f.relay.sessions.Get(100)
	require.True(t, ok, "flow should still be open for a valid choice")
	assert.NotNil(t, s)
}

func TestFlow_NoRecipients(t *testing.T) {
	// Writer's default route targets mcqs and word, but nobody holds them.
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
	})

	f.message(100, "anyone there?")

	assert.Contains(t, f.chat.lastAnswer(t, 100), "Nobody would receive")
	assert.Empty(t, f.chat.prompts)
	_, open := f.relay.sessions.Get(100)
	assert.False(t, open)
}

func TestFlow_TriggerThenSeparateMessage(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWord: {100},
		directory.RoleTara: {500},
	})

	// Bare trigger with no body: the relay asks for the message first.
	f.message(100, "-t")
	assert.Contains(t, f.chat.lastAnswer(t, 100), "Send the message")
	assert.Empty(t, f.chat.prompts)

	f.message(100, "need sign-off on the layout")
	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	assert.Equal(t, []string{"need sign-off on the layout"}, f.chat.textsFor(500))
}

func TestFlow_SlashCancelMidFlow(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWord: {100},
		directory.RoleTara: {500},
	})

	f.message(100, "-t")
	f.message(100, "/cancel")

	assert.Contains(t, f.chat.lastAnswer(t, 100), "Cancelled")
	_, open := f.relay.sessions.Get(100)
	assert.False(t, open)

	// The next message starts a fresh flow.
	f.message(100, "hello again")
	assert.NotEmpty(t, f.chat.prompts)
}

func TestFlow_MutedSenderRejected(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
	})
	require.NoError(t, f.mutes.Mute(context.Background(), 100))

	f.message(100, "hello")

	assert.Contains(t, f.chat.lastAnswer(t, 100), "not allowed")
	assert.Empty(t, f.chat.prompts)
}

func TestFlow_AdminDirectID(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
	})

	f.message(testAdmin, "-id 100 please check in")
	f.callback(testAdmin, f.chat.callbackData(t, callbackConfirm))

	assert.Equal(t, []string{"please check in"}, f.chat.textsFor(100))
}

func TestFlow_DocumentDelivery(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
		directory.RoleMCQs:   {200},
		directory.RoleWord:   {300},
	})

	f.relay.HandleEvent(context.Background(), transport.Event{
		Kind:    transport.EventMessage,
		Sender:  100,
		DocRef:  "file-42",
		Caption: "worksheet draft",
	})

	prompt := f.chat.lastPrompt(t)
	assert.Contains(t, prompt.prompt, "document")

	f.callback(100, f.chat.callbackData(t, callbackConfirm))

	assert.Equal(t, []string{"file-42"}, f.chat.docs[200])
	assert.Equal(t, []string{"file-42"}, f.chat.docs[300])
}

func TestFlow_SlashCommandsBypassRouting(t *testing.T) {
	f := newFixture(t, map[directory.Role][]directory.Identity{
		directory.RoleWriter: {100},
	})

	f.message(100, "/roles")

	assert.Empty(t, f.chat.prompts)
	assert.NotEmpty(t, f.chat.textsFor(100))
}
