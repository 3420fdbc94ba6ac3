package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/pkg/ecoapi"

	"github.com/google/uuid"
)

var networkErr = &ecoapi.Error{Kind: ecoapi.KindNetwork, Op: "test", Message: "test: network error"}

// fakeRemote 是远端 API 的内存实现。
type fakeRemote struct {
	mu            sync.Mutex
	conversations map[string]model.Conversation
	now           time.Time

	listErr   error
	getErr    error
	createErr error
	updateErr error
	deleteErr error
	chatErr   error

	createCalls int
	updateCalls int
	deleteCalls int
	chatCalls   []chatCall

	reply     ecoapi.ChatReply
	chatGate  chan struct{}
	uploadErr map[string]error
	uploaded  []string
	processed [][]string
	procErr   error
}

type chatCall struct {
	question  string
	sessionID string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		conversations: make(map[string]model.Conversation),
		now:           time.UnixMilli(1700000000000),
		uploadErr:     make(map[string]error),
	}
}

func (f *fakeRemote) put(conv model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[conv.ID] = conv.Clone()
}

func (f *fakeRemote) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (f *fakeRemote) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return model.Conversation{}, f.getErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return model.Conversation{}, &ecoapi.Error{Kind: ecoapi.KindNotFound, Message: "not found"}
	}
	return c.Clone(), nil
}

func (f *fakeRemote) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return model.Conversation{}, f.createErr
	}
	conv := model.NewConversation(uuid.NewString(), f.now)
	conv.Title = title
	f.conversations[conv.ID] = conv
	return conv.Clone(), nil
}

func (f *fakeRemote) UpdateConversation(ctx context.Context, id string, patch ecoapi.ConversationPatch) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return model.Conversation{}, f.updateErr
	}
	conv := f.conversations[id]
	conv.ID = id
	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	if patch.SessionID != nil {
		conv.SessionID = *patch.SessionID
	}
	if patch.Messages != nil {
		conv.Messages = append([]model.Message(nil), patch.Messages...)
	}
	if patch.LastUpdated != nil {
		conv.LastUpdated = *patch.LastUpdated
	}
	f.conversations[id] = conv
	return conv.Clone(), nil
}

func (f *fakeRemote) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.conversations, id)
	return nil
}

func (f *fakeRemote) Chat(ctx context.Context, question, sessionID string) (ecoapi.ChatReply, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, chatCall{question: question, sessionID: sessionID})
	gate := f.chatGate
	reply, err := f.reply, f.chatErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return reply, err
}

func (f *fakeRemote) UploadFile(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[name]; err != nil {
		return err
	}
	f.uploaded = append(f.uploaded, name)
	return nil
}

func (f *fakeRemote) ProcessFiles(ctx context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.procErr != nil {
		return f.procErr
	}
	f.processed = append(f.processed, append([]string(nil), names...))
	return nil
}

func conversationAt(id, title string, ms int64) model.Conversation {
	conv := model.NewConversation(id, time.UnixMilli(ms))
	conv.Title = title
	return conv
}
