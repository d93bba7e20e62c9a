package inventory

import (
	"fmt"

	"go.uber.org/zap"
)

// ValuationMethod defines stock valuation methods
// 在庫評価方法を定義
type ValuationMethod string

const (
	ValuationMethodStandard ValuationMethod = "STANDARD" // 標準原価
	ValuationMethodPurchase ValuationMethod = "PURCHASE" // 仕入原価
	ValuationMethodSale     ValuationMethod = "SALE"     // 販売価格
)

// ValuationEngine values on-hand stock using per-item cost attributes
// 商品の原価属性を用いて手持在庫を評価
type ValuationEngine struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewValuationEngine creates a new valuation engine
// 新しい在庫評価エンジンを作成
func NewValuationEngine(ledger *Ledger, logger *zap.Logger) *ValuationEngine {
	return &ValuationEngine{
		ledger: ledger,
		logger: logger,
	}
}

// ValueInScope calculates the value of one item's stock within a scope
// スコープ内の単一商品の在庫価値を計算
func (v *ValuationEngine) ValueInScope(itemID string, scope Scope, method ValuationMethod) (float64, error) {
	item := v.ledger.GetItem(itemID)
	if item == nil {
		return 0, ErrItemNotFound
	}

	qty := v.ledger.QuantityInScope(itemID, scope)
	if qty <= 0 {
		return 0, nil
	}

	cost, err := unitValue(item, method)
	if err != nil {
		return 0, err
	}
	return cost * qty, nil
}

// TotalValue calculates the value of all stock within a scope
// スコープ内の全在庫価値を計算
func (v *ValuationEngine) TotalValue(scope Scope, method ValuationMethod) float64 {
	total := 0.0
	for _, item := range v.ledger.Items() {
		value, err := v.ValueInScope(item.ID, scope, method)
		if err != nil {
			v.logger.Warn("商品価値計算でエラーが発生しました",
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
			continue
		}
		total += value
	}
	return total
}

// unitValue resolves the per-unit value for a valuation method
// 評価方法に応じた単価を解決
func unitValue(item *Item, method ValuationMethod) (float64, error) {
	switch method {
	case ValuationMethodStandard:
		if item.StdCost <= 0 {
			return 0, fmt.Errorf("商品に標準原価が設定されていません")
		}
		return item.StdCost, nil
	case ValuationMethodPurchase:
		if item.PurchaseCost <= 0 {
			return 0, fmt.Errorf("商品に仕入原価が設定されていません")
		}
		return item.PurchaseCost, nil
	case ValuationMethodSale:
		if item.SalePrice <= 0 {
			return 0, fmt.Errorf("商品に販売価格が設定されていません")
		}
		return item.SalePrice, nil
	default:
		return 0, fmt.Errorf("未対応の評価方法です: %s", method)
	}
}
