// Package storage はアップロード先ディレクトリ上のファイル配置を提供します。
//
// 配置はジョブIDから決定的に導出されます:
//
//	<root>/<jobID>.input.zip  入力アーカイブ
//	<root>/<jobID>.zip        出力アーカイブ
//
// ジョブIDは一意なので、異なるジョブが同じパスを取り合うことはありません。
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	inputSuffix  = ".input.zip"
	outputSuffix = ".zip"
)

// Local はローカルファイルシステム上のアップロードディレクトリです。
type Local struct {
	root string
}

// NewLocal はディレクトリを作成し（存在しない場合）、Local を返します。
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string {
	return l.root
}

// InputFilename は入力アーカイブのファイル名を返します。
func InputFilename(jobID string) string {
	return jobID + inputSuffix
}

// OutputFilename は出力アーカイブのファイル名を返します。
func OutputFilename(jobID string) string {
	return jobID + outputSuffix
}

func (l *Local) InputPath(jobID string) string {
	return filepath.Join(l.root, InputFilename(jobID))
}

func (l *Local) OutputPath(jobID string) string {
	return filepath.Join(l.root, OutputFilename(jobID))
}

// Exists はパスに通常ファイルが存在するかを返します。
func (l *Local) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Remove はファイルを削除します。存在しない場合はエラーにしません。
func (l *Local) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
