package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gojp/kana"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"furima/models"
)

const autocompleteKeywordLimit = 10

// normalizeKeyword 去除前後空白並將連續空白收斂為單一空白
func normalizeKeyword(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// Autocomplete confirmed keywords by romaji prefix
// (GET /api/keywords/autocomplete?q=...)
func (impl *ServerImpl) AutocompleteKeywords(c *gin.Context) {
	const op = "AutocompleteKeywords"
	q := normalizeKeyword(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []string{})
		return
	}
	// 查詢字串先轉為羅馬拼音，假名與羅馬字輸入都能比對到同一筆關鍵字
	romaji := strings.ToLower(kana.KanaToRomaji(q))
	var keywords []models.Keyword
	result := impl.db.
		Where("confirmed = ?", true).
		Where(`roman_alphabet LIKE ? ESCAPE '\'`, models.EscapeLike(romaji)+"%").
		Order("title").
		Limit(autocompleteKeywordLimit).
		Find(&keywords)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to autocomplete keywords, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, lo.Map(keywords, func(keyword models.Keyword, _ int) string { return keyword.Title }))
}

type registerKeywordRequest struct {
	Title string `json:"title" binding:"required"`
}

// Register a search keyword as an unconfirmed candidate
// (POST /api/keywords/register)
func (impl *ServerImpl) RegisterKeyword(c *gin.Context) {
	const op = "RegisterKeyword"
	var request registerKeywordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		validationError(c, map[string]string{"title": "this field is required"})
		return
	}
	title := normalizeKeyword(request.Title)
	if title == "" {
		validationError(c, map[string]string{"title": "this field is required"})
		return
	}

	// 同一個關鍵字只保留一筆
	var count int64
	if result := impl.db.Model(&models.Keyword{}).Where("title = ?", title).Count(&count); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to check existing keyword, err=%w", op, result.Error))
		return
	}
	if count > 0 {
		c.Status(http.StatusNoContent)
		return
	}

	keyword := models.Keyword{
		Title:         title,
		RomanAlphabet: strings.ToLower(kana.KanaToRomaji(title)),
	}
	if result := impl.db.Create(&keyword); result.Error != nil {
		if result.Error == gorm.ErrDuplicatedKey {
			c.Status(http.StatusNoContent)
			return
		}
		serverError(c, fmt.Errorf("[%s] Fail to create keyword, err=%w", op, result.Error))
		return
	}
	c.Status(http.StatusCreated)
}
