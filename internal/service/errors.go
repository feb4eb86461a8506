package service

import (
	"errors"
	"fmt"
)

var (
	// 最低层级没有任何关卡，属于配置错误
	ErrCatalogEmpty = errors.New("关卡目录为空")

	ErrInvalidUser        = errors.New("user_id 必填")
	ErrRunNotFound        = errors.New("run 不存在")
	ErrRunAlreadyFinished = errors.New("run 已结束")
	// 提交的挑战已不是当前挑战（重复点击或并发提交）
	ErrStaleOutcome   = errors.New("挑战状态已变化，请刷新")
	ErrInvalidOutcome = errors.New("completed 与 skipped_whole 不能同时为 true")

	// 以下两个为一致性错误，正常情况下不可达
	ErrNoPendingChallenge = errors.New("run 没有进行中的挑战")
	ErrChallengeMissing   = errors.New("进行中的挑战已从目录删除")

	ErrStorageUnavailable = errors.New("存储不可用")

	ErrUploadRejected  = errors.New("上传文件不符合要求")
	ErrUnsupportedType = fmt.Errorf("%w: 仅支持 jpg/png/webp", ErrUploadRejected)
	ErrFileTooLarge    = fmt.Errorf("%w: 文件过大", ErrUploadRejected)
	ErrExternalStorage = errors.New("对象存储上传失败")
)

// storageErr 包装数据库错误，调用方只需判断 ErrStorageUnavailable
type storageErr struct {
	op  string
	err error
}

func (e *storageErr) Error() string { return e.op + ": " + e.err.Error() }

func (e *storageErr) Unwrap() []error { return []error{ErrStorageUnavailable, e.err} }

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageErr{op: op, err: err}
}
