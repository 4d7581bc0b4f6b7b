package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"jirascraper/models"
	"jirascraper/utils"
)

// CursorStore は進捗カーソルを永続化します
type CursorStore interface {
	Load() (models.Cursor, error)
	Save(cursor models.Cursor) error
}

// StateStore は進捗をJSONファイルに保存します
type StateStore struct {
	path string
}

// NewStateStore は新しい状態ストアを作成します
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path は状態ファイルのパスを返します
func (s *StateStore) Path() string {
	return s.path
}

// Load は保存された進捗を読み込みます。ファイルがない、または壊れている場合は先頭から始めます
func (s *StateStore) Load() (models.Cursor, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Cursor{}, nil
	}
	if err != nil {
		return models.Cursor{}, fmt.Errorf("状態ファイル読み込みエラー: %w", err)
	}

	var cursor models.Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		utils.LogWarn("状態ファイル %s が壊れています。最初から開始します: %v", s.path, err)
		return models.Cursor{}, nil
	}
	if cursor.SourceIndex < 0 || cursor.Offset < 0 {
		utils.LogWarn("状態ファイル %s の値が不正です (%+v)。最初から開始します", s.path, cursor)
		return models.Cursor{}, nil
	}

	return cursor, nil
}

// Save は進捗を上書き保存します。一時ファイルに書いてから置き換えるため途中状態は残りません
func (s *StateStore) Save(cursor models.Cursor) error {
	data, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイル作成エラー: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("状態ファイル書き込みエラー: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("状態ファイル同期エラー: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("状態ファイルクローズエラー: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("状態ファイル置き換えエラー: %w", err)
	}
	return nil
}
