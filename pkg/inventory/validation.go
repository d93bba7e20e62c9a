package inventory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateItemID 商品IDの形式をバリデーション
func ValidateItemID(itemID string) error {
	if itemID == "" {
		return NewValidationError("item_id", "商品IDが空です", itemID)
	}
	if len(itemID) > 255 {
		return NewValidationError("item_id", "商品IDが長すぎます", itemID)
	}
	if !idPattern.MatchString(itemID) {
		return NewValidationError("item_id", "商品IDに無効な文字が含まれています", itemID)
	}
	return nil
}

// ValidateLocationID ロケーションIDの形式をバリデーション
func ValidateLocationID(locationID string) error {
	if locationID == "" {
		return NewValidationError("location_id", "ロケーションIDが空です", locationID)
	}
	if len(locationID) > 255 {
		return NewValidationError("location_id", "ロケーションIDが長すぎます", locationID)
	}
	if !idPattern.MatchString(locationID) {
		return NewValidationError("location_id", "ロケーションIDに無効な文字が含まれています", locationID)
	}
	return nil
}

// ValidateQuantity 数量をバリデーション
func ValidateQuantity(qty float64) error {
	if !isFinite(qty) {
		return NewValidationError("qty", "数量が数値ではありません", fmt.Sprintf("%v", qty))
	}
	if qty < 0 {
		return NewValidationError("qty", "負の数量は許可されていません", fmt.Sprintf("%g", qty))
	}
	if qty > 999999999 {
		return NewValidationError("qty", "数量が有効範囲を超えています", fmt.Sprintf("%g", qty))
	}
	return nil
}

// ValidateItemName 商品名をバリデーション
func ValidateItemName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("name", "商品名が空です", name)
	}
	if len(name) > 500 {
		return NewValidationError("name", "商品名が長すぎます", name)
	}
	return nil
}

// ValidateLocationName ロケーション名をバリデーション
func ValidateLocationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("name", "ロケーション名が空です", name)
	}
	if len(name) > 500 {
		return NewValidationError("name", "ロケーション名が長すぎます", name)
	}
	return nil
}

// ValidateSKU SKUの形式をバリデーション
func ValidateSKU(sku string) error {
	if sku == "" {
		return nil // SKUは任意
	}
	if len(sku) > 255 {
		return NewValidationError("sku", "SKUが長すぎます", sku)
	}
	validPattern := regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	if !validPattern.MatchString(sku) {
		return NewValidationError("sku", "SKUに無効な文字が含まれています", sku)
	}
	return nil
}

// ValidateISODate ISO日付（YYYY-MM-DD）をバリデーション
func ValidateISODate(dateISO string) error {
	if _, err := time.Parse("2006-01-02", dateISO); err != nil {
		return NewValidationError("date", "ISO日付形式ではありません", dateISO)
	}
	return nil
}

// ValidateReference 参照番号の形式をバリデーション
func ValidateReference(reference string) error {
	if reference == "" {
		return nil // 参照番号は任意
	}
	if len(reference) > 500 {
		return NewValidationError("reference", "参照番号が長すぎます", reference)
	}
	return nil
}
