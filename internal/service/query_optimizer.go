package service

import (
	"fmt"
	"regexp"
	"strings"
)

// 各改写规则匹配的查询形态。改写只处理这里声明的形态，不做通用 SQL 解析。
var (
	inSubqueryRe   = regexp.MustCompile(`(?i)\b(\w+)\.(\w+)\s+IN\s*\(\s*SELECT\s+(\w+)\s+FROM\s+(\w+)\s*\)`)
	implicitJoinRe = regexp.MustCompile(`(?i)\bFROM\s+(\w+)\s*,\s*(\w+)\s+WHERE\s+(\w+)\.(\w+)\s*=\s*(\w+)\.(\w+)`)
	derivedTableRe = regexp.MustCompile(`(?is)\bFROM\s*\(\s*SELECT(.*?)\bGROUP BY(.*?)\)\s*(\w+)\s*WHERE(.*)$`)
	groupByRe      = regexp.MustCompile(`(?i)\bGROUP BY\b`)
)

// QueryOptimizer 对已通过校验的 SELECT 做正则级改写。
// 规则是保守的形态匹配：不命中时原样返回，命中时做等价改写或加提示注释。
type QueryOptimizer struct {
	indexHints map[string][]string
}

// NewQueryOptimizer 创建优化器。indexHints 按表名给出建议索引列，可为 nil。
func NewQueryOptimizer(indexHints map[string][]string) *QueryOptimizer {
	return &QueryOptimizer{indexHints: indexHints}
}

// Optimize 依次应用全部规则，返回改写结果与是否发生了改写。
func (o *QueryOptimizer) Optimize(query string) (string, bool) {
	optimized := query
	optimized = o.rewriteInToExists(optimized)
	optimized = o.rewriteImplicitJoins(optimized)
	optimized = o.pushdownDerivedPredicates(optimized)
	optimized = o.addIndexHints(optimized)
	optimized = o.addGroupByHint(optimized)
	return optimized, optimized != query
}

// rewriteInToExists 把无关联条件的 IN 子查询改写为等价的 EXISTS。
// 仅处理 col IN (SELECT col2 FROM tbl) 形态。
func (o *QueryOptimizer) rewriteInToExists(query string) string {
	return inSubqueryRe.ReplaceAllString(query,
		"EXISTS (SELECT 1 FROM $4 WHERE $4.$3 = $1.$2)")
}

// rewriteImplicitJoins 把逗号连接加等值条件改写为显式 INNER JOIN。
func (o *QueryOptimizer) rewriteImplicitJoins(query string) string {
	return implicitJoinRe.ReplaceAllString(query,
		"FROM $1 INNER JOIN $2 ON $3.$4 = $5.$6")
}

// pushdownDerivedPredicates 把派生表外层的 WHERE 下推到 GROUP BY 之前。
// 仅处理 FROM (SELECT ... GROUP BY ...) alias WHERE ... 形态。
func (o *QueryOptimizer) pushdownDerivedPredicates(query string) string {
	return derivedTableRe.ReplaceAllStringFunc(query, func(match string) string {
		groups := derivedTableRe.FindStringSubmatch(match)
		selectPart := groups[1]
		groupByPart := strings.TrimRight(groups[2], " \t\n")
		alias := groups[3]
		wherePart := strings.TrimSpace(groups[4])
		return fmt.Sprintf("FROM (SELECT%sWHERE %s GROUP BY%s) %s", selectPart, wherePart, groupByPart+" ", alias)
	})
}

// addIndexHints 为配置过索引提示的表加 /*+ INDEX(...) */ 注释。
func (o *QueryOptimizer) addIndexHints(query string) string {
	optimized := query
	lower := strings.ToLower(query)
	for table, columns := range o.indexHints {
		if !strings.Contains(lower, table) {
			continue
		}
		hint := fmt.Sprintf("/*+ INDEX(%s %s) */", table, strings.Join(columns, " "))
		fromRe := regexp.MustCompile(`(?i)\bFROM\s+` + table + `\b`)
		optimized = fromRe.ReplaceAllString(optimized, "FROM "+hint+" "+table)
	}
	return optimized
}

// addGroupByHint 为聚合查询加并行执行提示。
func (o *QueryOptimizer) addGroupByHint(query string) string {
	if groupByRe.MatchString(query) && !strings.HasPrefix(query, "/*+ PARALLEL") {
		return "/*+ PARALLEL(4) */ " + query
	}
	return query
}
