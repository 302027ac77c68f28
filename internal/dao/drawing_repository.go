package dao

import (
	"context"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"
	"github.com/haierkeys/schedule-note-sync/pkg/util"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type drawingRepository struct {
	dao *Dao
}

// NewDrawingRepository 创建服务端手绘仓储
func NewDrawingRepository(dao *Dao) domain.DrawingRepository {
	return &drawingRepository{dao: dao}
}

var _ domain.DrawingRepository = (*drawingRepository)(nil)

func (r *drawingRepository) toDomain(m *model.Drawing) (*domain.ScheduleDrawing, error) {
	day, err := util.ParseDay(m.Date)
	if err != nil {
		return nil, errors.Wrap(err, "parse drawing date")
	}
	strokes, err := domain.DecodeStrokes([]byte(m.Strokes))
	if err != nil {
		return nil, err
	}
	return &domain.ScheduleDrawing{
		Key:       domain.NewDrawingKey(m.BookUUID, day, m.ViewMode),
		Strokes:   strokes,
		Version:   m.Version,
		UpdatedAt: fromMs(m.UpdatedAt),
	}, nil
}

func (r *drawingRepository) where(db *gorm.DB, key domain.DrawingKey) *gorm.DB {
	return db.Where("book_uuid = ? AND date = ? AND view_mode = ?", key.BookUUID, util.FormatDay(key.Date), key.ViewMode)
}

func (r *drawingRepository) Get(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	var m model.Drawing
	if err := r.where(r.dao.DB(ctx), key).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m)
}

func (r *drawingRepository) List(ctx context.Context, rg domain.DrawingRange) ([]*domain.ScheduleDrawing, error) {
	q := r.dao.DB(ctx).Model(&model.Drawing{}).Where("book_uuid = ?", rg.BookUUID)
	if !rg.From.IsZero() {
		q = q.Where("date >= ?", util.FormatDay(rg.From))
	}
	if !rg.To.IsZero() {
		q = q.Where("date < ?", util.FormatDay(rg.To))
	}
	if rg.ViewMode != nil {
		q = q.Where("view_mode = ?", *rg.ViewMode)
	}
	var rows []*model.Drawing
	if err := q.Order("date ASC").Order("view_mode ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list drawings")
	}
	out := make([]*domain.ScheduleDrawing, 0, len(rows))
	for _, m := range rows {
		d, err := r.toDomain(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *drawingRepository) Create(ctx context.Context, drawing *domain.ScheduleDrawing) (*domain.ScheduleDrawing, error) {
	strokes, err := domain.EncodeStrokes(drawing.Strokes)
	if err != nil {
		return nil, err
	}
	m := &model.Drawing{
		BookUUID: drawing.Key.BookUUID,
		Date:     util.FormatDay(drawing.Key.Date),
		ViewMode: drawing.Key.ViewMode,
		Strokes:  string(strokes),
		Version:  1,
	}
	taken, err := createOnce(r.dao.DB(ctx), m)
	if err != nil {
		return nil, errors.Wrap(err, "create drawing")
	}
	if taken {
		ce := &domain.ConflictError{Kind: string(domain.KindDrawing), Key: drawing.Key.String(), ExpectedVersion: drawing.Version}
		if cur, gerr := r.Get(ctx, drawing.Key); gerr == nil {
			ce.ServerVersion = cur.Version
		}
		return nil, ce
	}
	return r.toDomain(m)
}

func (r *drawingRepository) UpdateCAS(ctx context.Context, drawing *domain.ScheduleDrawing, expectedVersion int64) (*domain.ScheduleDrawing, error) {
	strokes, err := domain.EncodeStrokes(drawing.Strokes)
	if err != nil {
		return nil, err
	}
	res := r.where(r.dao.DB(ctx).Model(&model.Drawing{}), drawing.Key).
		Where("version = ?", expectedVersion).
		Updates(map[string]any{
			"strokes": string(strokes),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update drawing")
	}
	if res.RowsAffected == 0 {
		cur, err := r.Get(ctx, drawing.Key)
		if err != nil {
			return nil, err
		}
		return nil, &domain.ConflictError{Kind: string(domain.KindDrawing), Key: drawing.Key.String(), ExpectedVersion: expectedVersion, ServerVersion: cur.Version}
	}
	return r.Get(ctx, drawing.Key)
}

func (r *drawingRepository) Delete(ctx context.Context, key domain.DrawingKey) error {
	return errors.Wrap(r.where(r.dao.DB(ctx), key).Delete(&model.Drawing{}).Error, "delete drawing")
}
