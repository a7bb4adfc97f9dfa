package main

import (
	"context"
	"errors"

	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
)

// resolveSession 把 --session 的取值解析为会话 ID
func resolveSession(ctx context.Context, a *app, userID, flag string) (chat.ID, error) {
	dir := chatService.NewDirectory(a.client, 1, a.logger)
	switch flag {
	case "":
		return dir.StartNew(ctx, userID)
	case "latest":
		id, ok, err := dir.Latest(ctx, userID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.New("no sessions yet, omit --session to start one")
		}
		return id, nil
	default:
		return chat.ID(flag), nil
	}
}
