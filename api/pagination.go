package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const defaultPageSize = 30

// PaginatedResponse 是分頁集合的回應格式
type PaginatedResponse struct {
	Count      int64   `json:"count"`
	Next       *string `json:"next"`
	Previous   *string `json:"previous"`
	Results    any     `json:"results"`
	TotalPages int64   `json:"total_pages"`
}

// pageNumber 解析 page 參數，格式不正確時回到第 1 頁
func pageNumber(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// pageLink 以目前的請求 URL 產生指定頁數的連結
func pageLink(c *gin.Context, page int) *string {
	uri := *c.Request.URL
	query := uri.Query()
	query.Set("page", strconv.Itoa(page))
	uri.RawQuery = query.Encode()
	link := uri.String()
	return &link
}

// paginate 對查詢套用分頁，將結果寫入 results 並回傳回應格式
// 超出範圍的頁數會回傳空的結果集而不是錯誤
func paginate(c *gin.Context, query *gorm.DB, pageSize int, results any) (PaginatedResponse, error) {
	const op = "paginate"
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	page := pageNumber(c)

	var count int64
	if result := query.Session(&gorm.Session{}).Count(&count); result.Error != nil {
		return PaginatedResponse{}, fmt.Errorf("[%s] Fail to count results, err=%w", op, result.Error)
	}
	totalPages := (count + int64(pageSize) - 1) / int64(pageSize)
	if totalPages < 1 {
		totalPages = 1
	}

	offset := (page - 1) * pageSize
	if result := query.Offset(offset).Limit(pageSize).Find(results); result.Error != nil {
		return PaginatedResponse{}, fmt.Errorf("[%s] Fail to list results, err=%w", op, result.Error)
	}

	response := PaginatedResponse{
		Count:      count,
		Results:    results,
		TotalPages: totalPages,
	}
	if int64(page) < totalPages {
		response.Next = pageLink(c, page+1)
	}
	if page > 1 {
		response.Previous = pageLink(c, page-1)
	}
	return response, nil
}
