package service

import (
	"context"
	"fmt"
	"strings"

	"ai-assist-go/pkg/cache"
	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/log"

	"gorm.io/gorm"
)

// DatabaseService 执行生成的只读查询并提供 schema 描述。
type DatabaseService interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
	GetSchema(ctx context.Context) (string, error)
}

type databaseService struct {
	db        *gorm.DB
	cache     *cache.Cache
	sanitizer *SQLSanitizer
}

// NewDatabaseService 创建数据库服务。
func NewDatabaseService(db *gorm.DB, c *cache.Cache, sanitizer *SQLSanitizer) DatabaseService {
	return &databaseService{db: db, cache: c, sanitizer: sanitizer}
}

// ExecuteQuery 执行查询。生成器已校验过查询，这里作为纵深防御再校验一次，
// 并把字符串字面量转为绑定参数后才交给数据库。结果按查询缓存。
func (s *databaseService) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	sanitized, err := s.sanitizer.Sanitize(query)
	if err != nil {
		return nil, err
	}

	parameterized, params := s.sanitizer.ExtractParams(sanitized)

	cacheKey := s.cache.Key("db_query", sanitized)
	var cached []map[string]interface{}
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		log.Debugf("[DatabaseService] 查询命中缓存")
		return cached, nil
	}

	var results []map[string]interface{}
	if err := s.db.WithContext(ctx).Raw(parameterized, params...).Scan(&results).Error; err != nil {
		log.Errorf("[DatabaseService] 查询执行失败: %v, sql: %s", err, parameterized)
		return nil, fmt.Errorf("%w: %v", errs.ErrDatabaseQuery, err)
	}

	s.cache.SetJSON(ctx, cacheKey, results)
	return results, nil
}

// schemaColumn 对应 information_schema.columns 的一行。
type schemaColumn struct {
	TableName  string `gorm:"column:table_name"`
	ColumnName string `gorm:"column:column_name"`
	DataType   string `gorm:"column:data_type"`
	IsNullable string `gorm:"column:is_nullable"`
}

// GetSchema 读取当前库的表结构，输出生成器使用的 "Table: xxx" 文本格式。
// 结果缓存一个 TTL 周期，schema 变更最多延迟一个周期可见。
func (s *databaseService) GetSchema(ctx context.Context) (string, error) {
	cacheKey := s.cache.Key("db_schema", "current")
	if cached, ok := s.cache.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	var columns []schemaColumn
	err := s.db.WithContext(ctx).Raw(
		`SELECT table_name, column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = DATABASE()
		 ORDER BY table_name, ordinal_position`,
	).Scan(&columns).Error
	if err != nil {
		log.Errorf("[DatabaseService] 读取 schema 失败: %v", err)
		return "", fmt.Errorf("%w: %v", errs.ErrSchema, err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("%w: no tables found in current database", errs.ErrSchema)
	}

	var sb strings.Builder
	currentTable := ""
	for _, col := range columns {
		if col.TableName != currentTable {
			if currentTable != "" {
				sb.WriteString("\n")
			}
			currentTable = col.TableName
			fmt.Fprintf(&sb, "Table: %s\n", col.TableName)
		}
		nullable := "NOT NULL"
		if strings.EqualFold(col.IsNullable, "YES") {
			nullable = "NULL"
		}
		fmt.Fprintf(&sb, "  %s: %s %s\n", col.ColumnName, col.DataType, nullable)
	}

	schema := sb.String()
	s.cache.Set(ctx, cacheKey, schema)
	return schema, nil
}
