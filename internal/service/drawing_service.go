package service

import (
	"context"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"go.uber.org/zap"
)

// DrawingService 服务端日程手绘业务服务接口
type DrawingService interface {
	// Fetch 获取手绘
	Fetch(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error)

	// List 按范围列出手绘
	List(ctx context.Context, r domain.DrawingRange) ([]*domain.ScheduleDrawing, error)

	// Save follows the same versioned write rule as notes
	// Save 与笔记相同的版本写入规则
	Save(ctx context.Context, drawing *domain.ScheduleDrawing, expectedVersion int64) (*domain.ScheduleDrawing, error)

	// Delete 删除手绘
	Delete(ctx context.Context, key domain.DrawingKey) error
}

type drawingService struct {
	drawings domain.DrawingRepository
	logger   *zap.Logger
}

// NewDrawingService 创建 DrawingService 实例
func NewDrawingService(drawings domain.DrawingRepository, lg *zap.Logger) DrawingService {
	return &drawingService{drawings: drawings, logger: logger.OrNop(lg)}
}

var _ DrawingService = (*drawingService)(nil)

func (s *drawingService) Fetch(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.drawings.Get(ctx, key)
}

func (s *drawingService) List(ctx context.Context, r domain.DrawingRange) ([]*domain.ScheduleDrawing, error) {
	if r.BookUUID == "" {
		return nil, domain.NewValidationError("book_uuid", "is required")
	}
	if !r.To.After(r.From) {
		return []*domain.ScheduleDrawing{}, nil
	}
	return s.drawings.List(ctx, r)
}

func (s *drawingService) Save(ctx context.Context, drawing *domain.ScheduleDrawing, expectedVersion int64) (*domain.ScheduleDrawing, error) {
	if err := drawing.Validate(); err != nil {
		return nil, err
	}

	_, err := s.drawings.Get(ctx, drawing.Key)
	var saved *domain.ScheduleDrawing
	switch {
	case domain.IsNotFound(err):
		saved, err = s.drawings.Create(ctx, drawing)
		if err == nil {
			contentWrites.WithLabelValues(string(domain.KindDrawing), "create").Inc()
		}
	case err != nil:
		return nil, err
	default:
		saved, err = s.drawings.UpdateCAS(ctx, drawing, expectedVersion)
		if err == nil {
			contentWrites.WithLabelValues(string(domain.KindDrawing), "update").Inc()
		}
	}
	if ce, ok := domain.AsConflict(err); ok {
		ce.ExpectedVersion = expectedVersion
		casConflicts.WithLabelValues(string(domain.KindDrawing)).Inc()
		s.logger.Info("drawing save conflict",
			zap.String(logger.FieldKey, drawing.Key.String()),
			zap.Int64("expected", expectedVersion),
			zap.Int64(logger.FieldVersion, ce.ServerVersion))
	}
	return saved, err
}

func (s *drawingService) Delete(ctx context.Context, key domain.DrawingKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.drawings.Delete(ctx, key)
}
