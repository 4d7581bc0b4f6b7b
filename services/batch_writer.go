package services

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"jirascraper/models"
	"jirascraper/utils"
)

// ErrSinkWrite は出力ファイルへの書き込み失敗を表します
var ErrSinkWrite = errors.New("出力ファイル書き込みエラー")

// Sink はレコードを追記する出力先です
type Sink interface {
	Append(records []models.Record) error
}

// OutputSink はレコードを1行1件のJSONとしてファイルに追記します
type OutputSink struct {
	path string
}

// NewOutputSink は新しい出力先を作成します
func NewOutputSink(path string) *OutputSink {
	return &OutputSink{path: path}
}

// Append はレコードをファイル末尾に書き込み、ディスクへ同期します
func (s *OutputSink) Append(records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("ファイルオープンエラー: %w", err)
	}
	defer file.Close()

	if err := trimPartialLine(file); err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)

	for i := range records {
		// Encode は末尾に改行を付ける
		if err := encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("JSONエンコードエラー (%s): %w", records[i].ID, err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("書き込みエラー: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("同期エラー: %w", err)
	}
	return file.Close()
}

// tailChunkSize は末尾の改行を探すときに一度に読むバイト数です
const tailChunkSize = 4096

// trimPartialLine は改行で終わらない末尾行（書き込み途中で中断されたレコード）を切り詰めます。
// その行のカーソルは保存されていないため、同じレコードは再取得されて書き直されます。
func trimPartialLine(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("ファイル情報取得エラー: %w", err)
	}

	size := info.Size()
	end := size
	buf := make([]byte, tailChunkSize)
	for end > 0 {
		start := max(end-tailChunkSize, 0)
		chunk := buf[:end-start]
		if n, err := file.ReadAt(chunk, start); err != nil && !(errors.Is(err, io.EOF) && n == len(chunk)) {
			return fmt.Errorf("ファイル読み込みエラー: %w", err)
		}

		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			end = start + int64(i) + 1
			break
		}
		end = start
	}

	if end == size {
		return nil
	}
	utils.LogWarn("出力ファイル末尾の不完全な行 (%d バイト) を切り詰めます", size-end)
	if err := file.Truncate(end); err != nil {
		return fmt.Errorf("不完全な行の切り詰めエラー: %w", err)
	}
	return nil
}

// BatchWriter はレコードの追記と進捗の保存を同じコミットとして扱います
type BatchWriter struct {
	sink  Sink
	store CursorStore
}

// NewBatchWriter は新しいバッチライターを作成します
func NewBatchWriter(sink Sink, store CursorStore) *BatchWriter {
	return &BatchWriter{
		sink:  sink,
		store: store,
	}
}

// Commit はレコードを書き込んだ後にカーソルを保存します。
// 書き込みに失敗した場合カーソルは保存しません。
func (b *BatchWriter) Commit(records []models.Record, cursor models.Cursor) error {
	if err := b.sink.Append(records); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	if err := b.store.Save(cursor); err != nil {
		return fmt.Errorf("状態保存エラー: %w", err)
	}
	return nil
}

// ReadResult は出力ファイルの読み込み結果です
type ReadResult struct {
	Records []models.Record
	// PartialLine は改行で終わらない末尾行があったかを示します
	PartialLine bool
}

// ReadRecords は出力ファイルを読み込みます。改行で終わらない末尾行はエラーにせず報告のみ行います
func ReadRecords(path string) (*ReadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ファイルオープンエラー: %w", err)
	}
	defer file.Close()

	result := &ReadResult{}
	reader := bufio.NewReader(file)

	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				result.PartialLine = true
			}
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("読み込みエラー: %w", err)
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var record models.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("%d 行目の解析エラー: %w", lineNo, err)
		}
		result.Records = append(result.Records, record)
	}
}
