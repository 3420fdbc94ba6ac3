package ecoapi

import (
	"context"
	"encoding/base64"
	"net/http"
)

type uploadRequest struct {
	FileData string `json:"file_data"`
	FileName string `json:"file_name"`
}

type processRequest struct {
	Files []string `json:"files"`
}

type chatRequest struct {
	Question        string `json:"question"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
	SessionID       string `json:"session_id"`
}

// UploadFile sends one document to remote storage, base64 encoded.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) error {
	_, err := c.do(ctx, "failed to upload "+name, http.MethodPost, "/upload", uploadRequest{
		FileData: base64.StdEncoding.EncodeToString(data),
		FileName: name,
	})
	return err
}

// ProcessFiles asks the remote service to refresh the knowledge base from the uploaded files.
func (c *Client) ProcessFiles(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	_, err := c.do(ctx, "failed to process files", http.MethodPost, "/update", processRequest{Files: names})
	return err
}

// Chat asks the assistant one question. An empty sessionID starts a new server-side session.
// Only transport and status failures are errors; an unrecognized reply shape is not.
func (c *Client) Chat(ctx context.Context, question, sessionID string) (ChatReply, error) {
	const op = "failed to get assistant reply"
	data, err := c.do(ctx, op, http.MethodPost, "/chat", chatRequest{
		Question:        question,
		KnowledgeBaseID: c.knowledgeBaseID,
		SessionID:       sessionID,
	})
	if err != nil {
		return ChatReply{}, err
	}
	return DecodeChatReply(data), nil
}
