package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go-feeds/internal/fanout"
	"go-feeds/internal/model"
)

type AccountItemStore interface {
	QueryByField(ctx context.Context, field string, value any) ([]model.FeedItem, error)
	BatchDelete(ctx context.Context, ids []string) error
}

type AccountBlobStore interface {
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

type AccountSubscriptionStore interface {
	DeleteByAccount(ctx context.Context, accountID string) error
}

// AccountService 账户注销时清理该账户的全部数据
type AccountService struct {
	items  AccountItemStore
	blobs  AccountBlobStore
	subs   AccountSubscriptionStore
	logger *slog.Logger
}

func NewAccountService(items AccountItemStore, blobs AccountBlobStore, subs AccountSubscriptionStore, logger *slog.Logger) *AccountService {
	return &AccountService{items: items, blobs: blobs, subs: subs, logger: logger}
}

// Wipeout 删除条目、文件和订阅;三者互不影响,返回合并后的错误
func (s *AccountService) Wipeout(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("wipeout requires account id")
	}

	out := fanout.Settle(ctx,
		func(ctx context.Context) (int64, error) {
			items, err := s.items.QueryByField(ctx, "account_id", accountID)
			if err != nil {
				return 0, err
			}
			ids := make([]string, len(items))
			for i, item := range items {
				ids[i] = item.ID
			}
			if err := s.items.BatchDelete(ctx, ids); err != nil {
				return 0, fmt.Errorf("delete feed items: %w", err)
			}
			return int64(len(ids)), nil
		},
		func(ctx context.Context) (int64, error) {
			n, err := s.blobs.DeleteByPrefix(ctx, accountID+"/")
			if err != nil {
				return 0, fmt.Errorf("delete files: %w", err)
			}
			return n, nil
		},
		func(ctx context.Context) (int64, error) {
			return 0, s.subs.DeleteByAccount(ctx, accountID)
		},
	)

	var errs []error
	for _, r := range out.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	if len(errs) > 0 {
		s.logger.Error("account wipeout incomplete", "account_id", accountID, "failures", len(errs))
		return fmt.Errorf("wipe out account %s: %w", accountID, errors.Join(errs...))
	}

	s.logger.Info("account wiped out", "account_id", accountID,
		"items", out.Results[0].Value, "files", out.Results[1].Value)
	return nil
}
