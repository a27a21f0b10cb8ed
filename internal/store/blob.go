package store

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// 导入器写入的文件名
const (
	FileRawHTML         = "raw.html"
	FileMainContentHTML = "mainContent.html"
	FileMainContentMD   = "mainContent.md"
	FileLLMContext      = "llmContext.md"
	FileTranscript      = "transcript.md"
	FileExplain         = "explain.md"
)

var itemFiles = []string{
	FileRawHTML, FileMainContentHTML, FileMainContentMD, FileLLMContext, FileTranscript, FileExplain,
}

// IsItemFile 是否为条目目录下的已知文件
func IsItemFile(name string) bool {
	return slices.Contains(itemFiles, name)
}

// BlobPath {accountId}/{feedItemId}/{filename}
func BlobPath(accountID, itemID, filename string) string {
	return path.Join(accountID, itemID, filename)
}

// Blob 按路径存储的文件内容
type Blob struct {
	Path        string `gorm:"primaryKey;size:1024"`
	Content     []byte
	ContentType string `gorm:"size:128"`
	UpdatedAt   time.Time
}

// BlobStore 文件存储,与记录存储共用数据库
type BlobStore struct {
	db *gorm.DB
}

func NewBlobStore(db *gorm.DB) *BlobStore {
	return &BlobStore{db: db}
}

// WriteFile 写入或覆盖文件
func (s *BlobStore) WriteFile(ctx context.Context, filePath string, content []byte, contentType string) error {
	if filePath == "" || strings.HasSuffix(filePath, "/") {
		return fmt.Errorf("invalid blob path %q", filePath)
	}
	blob := Blob{Path: filePath, Content: content, ContentType: contentType}
	err := s.db.WithContext(ctx).Save(&blob).Error
	if err != nil {
		return fmt.Errorf("write blob %s: %w", filePath, err)
	}
	return nil
}

// ReadFile 读取文件内容
func (s *BlobStore) ReadFile(ctx context.Context, filePath string) ([]byte, string, error) {
	var blob Blob
	if err := s.db.WithContext(ctx).First(&blob, "path = ?", filePath).Error; err != nil {
		return nil, "", fmt.Errorf("read blob %s: %w", filePath, notFound(err))
	}
	return blob.Content, blob.ContentType, nil
}

// DeleteByPrefix 删除前缀下的所有文件,返回删除数量
func (s *BlobStore) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete blobs with empty prefix")
	}
	res := s.db.WithContext(ctx).
		Where("path LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Delete(&Blob{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete blobs under %s: %w", prefix, res.Error)
	}
	return res.RowsAffected, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
