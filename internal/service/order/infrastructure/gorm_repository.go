// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meridian/internal/service/order/domain"
)

// mysqlDuplicateEntry 是 MySQL 唯一键冲突的错误码
const mysqlDuplicateEntry = 1062

// GormOrderRepository 是 OrderRepository 的 GORM 实现。
// Save 在同一个事务里写入订单行、条目和本批事件的 outbox 条目，
// 保证"状态变更已提交 ⇔ 事件已入库"。
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 订单仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save 保存订单聚合（创建或更新），并把 drain 出的事件写入 order_outbox。
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order, events []domain.Event) error {
	model := ToOrderModel(order)

	entries := make([]*OutboxModel, 0, len(events))
	for _, event := range events {
		entry, err := domain.NewOutboxEntry(event)
		if err != nil {
			return err
		}
		entries = append(entries, ToOutboxModel(entry))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 订单主行 upsert
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit("Items").Create(model).Error; err != nil {
			return pkgerrors.Wrap(err, "save order row")
		}

		// 条目全量替换：聚合是小对象，简单可靠优先
		if err := tx.Where("order_id = ?", order.ID).Delete(&OrderItemModel{}).Error; err != nil {
			return pkgerrors.Wrap(err, "delete stale order items")
		}
		if len(model.Items) > 0 {
			if err := tx.Create(&model.Items).Error; err != nil {
				return pkgerrors.Wrap(err, "save order items")
			}
		}

		for _, entry := range entries {
			if err := tx.Create(entry).Error; err != nil {
				// 条目 ID 冲突说明同一批事件被重复提交，跳过即可
				if isDuplicateEntry(err) {
					continue
				}
				return pkgerrors.Wrap(err, "stage outbox entry")
			}
		}
		return nil
	})
}

// FindByID 根据 ID 查找订单聚合，含条目。
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(err, "find order by id")
	}
	return ToDomainOrder(&model), nil
}

// FindByUserID 返回某个用户的全部订单，新的在前。
func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find orders by user id")
	}
	return toDomainOrders(models), nil
}

// FindAll 返回全部订单，新的在前。
func (r *GormOrderRepository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find all orders")
	}
	return toDomainOrders(models), nil
}

// Count 返回订单总数。
func (r *GormOrderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(err, "count orders")
	}
	return count, nil
}

func toDomainOrders(models []OrderModel) []*domain.Order {
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// GormFlashSaleRepository 是 FlashSaleRepository 的 GORM 实现
type GormFlashSaleRepository struct {
	db *gorm.DB
}

func NewGormFlashSaleRepository(db *gorm.DB) *GormFlashSaleRepository {
	return &GormFlashSaleRepository{db: db}
}

// Save 保存秒杀活动记录（创建或更新）。
func (r *GormFlashSaleRepository) Save(ctx context.Context, sale *domain.FlashSale) error {
	model := ToFlashSaleModel(sale)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
		return pkgerrors.Wrap(err, "save flash sale")
	}
	return nil
}

// FindByID 根据 ID 查找秒杀活动，不存在时返回 (nil, nil)。
func (r *GormFlashSaleRepository) FindByID(ctx context.Context, id string) (*domain.FlashSale, error) {
	var model FlashSaleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "find flash sale by id")
	}
	return ToDomainFlashSale(&model), nil
}

// SyncRemaining 把计数器快照回写到读模型字段，仅用于展示。
func (r *GormFlashSaleRepository) SyncRemaining(ctx context.Context, id string, remaining int) error {
	err := r.db.WithContext(ctx).Model(&FlashSaleModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"remaining_quantity": remaining,
			"updated_at":         time.Now(),
		}).Error
	return pkgerrors.Wrap(err, "sync flash sale remaining quantity")
}
