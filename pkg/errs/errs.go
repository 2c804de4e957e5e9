// Package errs 定义全局错误分类，供各服务用 errors.Is 判断错误类型。
package errs

import "errors"

var (
	// ErrValidation 输入校验失败（空内容、非法扩展名、危险 SQL 等）。
	ErrValidation = errors.New("validation failed")

	// ErrNotFound 目标资源不存在（文档、用户等）。
	ErrNotFound = errors.New("not found")

	// ErrUpstream 上游依赖调用失败（LLM、Embedding、ES、Tika 等）。
	ErrUpstream = errors.New("upstream request failed")

	// ErrTimeout 外部调用超时。
	ErrTimeout = errors.New("request timed out")

	// ErrConfiguration 配置错误（未注册或未初始化的 LLM 提供方等）。
	ErrConfiguration = errors.New("invalid configuration")

	// ErrSQLGeneration SQL 生成或校验失败。
	ErrSQLGeneration = errors.New("sql generation failed")

	// ErrDatabaseQuery 生成 SQL 的执行失败。
	ErrDatabaseQuery = errors.New("database query failed")

	// ErrSchema 数据库 schema 读取失败。
	ErrSchema = errors.New("schema introspection failed")
)
