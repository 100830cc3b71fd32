package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/storage"
)

const roomStatusMaintenance = "maintenance"

// HousingService keeps assignments and room occupancy in step.
type HousingService struct {
	store *storage.Store
	audit *audit.Service
}

func NewHousingService(store *storage.Store, auditSvc *audit.Service) *HousingService {
	return &HousingService{store: store, audit: auditSvc}
}

// AssignRoom places an employee in a room and raises the room's occupancy
// in the same unit of work.
func (s *HousingService) AssignRoom(ctx context.Context, req AssignRoomRequest) (*storage.Assignment, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return nil, invalid("tenant_id", "is required")
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now().UTC()
	}
	scope := storage.ForTenant(req.TenantID)

	var created *storage.Assignment
	err := s.store.Write(ctx, func(tx *storage.Tx) error {
		if _, err := s.store.Employees.Tx(tx).GetByID(ctx, scope, req.EmployeeID); err != nil {
			return err
		}
		room, err := s.store.Rooms.Tx(tx).GetByID(ctx, scope, req.RoomID)
		if err != nil {
			return err
		}

		current, err := s.store.Assignments.Tx(tx).FindBy(ctx, scope, "employee_id", req.EmployeeID)
		if err != nil {
			return err
		}
		for _, a := range current {
			if a.Status == storage.AssignmentActive {
				return invalid("employee_id", "employee already has an active assignment")
			}
		}
		if room.Status == roomStatusMaintenance {
			return invalid("room_id", "room is under maintenance")
		}
		if room.Occupied >= room.Capacity {
			return invalid("room_id", "room is full")
		}

		room.Occupied++
		if err := s.store.Rooms.Tx(tx).Update(ctx, scope, room.ID, room, "occupied"); err != nil {
			return err
		}
		assignment, err := s.store.Assignments.Tx(tx).Create(ctx, scope, &storage.Assignment{
			EmployeeID: req.EmployeeID,
			RoomID:     room.ID,
			StartDate:  req.StartDate,
			Notes:      req.Notes,
		})
		if err != nil {
			return err
		}
		created = assignment
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     audit.ActionAssignmentCreate,
			TargetType: "assignment",
			TargetID:   assignment.ID,
			Details:    map[string]any{"employee_id": req.EmployeeID, "room_id": room.ID},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("assign room: %w", err)
	}
	return created, nil
}

// EndAssignment closes an active assignment and frees its place in the room.
func (s *HousingService) EndAssignment(ctx context.Context, req EndAssignmentRequest) error {
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return invalid("tenant_id", "is required")
	}
	if req.EndDate.IsZero() {
		req.EndDate = time.Now().UTC()
	}
	scope := storage.ForTenant(req.TenantID)

	err := s.store.Write(ctx, func(tx *storage.Tx) error {
		assignment, err := s.store.Assignments.Tx(tx).GetByID(ctx, scope, req.AssignmentID)
		if err != nil {
			return err
		}
		if assignment.Status != storage.AssignmentActive {
			return invalid("status", "assignment has already ended")
		}
		if req.EndDate.Before(assignment.StartDate) {
			return invalid("end_date", "must not be before start_date")
		}

		assignment.Status = storage.AssignmentEnded
		assignment.EndDate = req.EndDate
		if err := s.store.Assignments.Tx(tx).Update(ctx, scope, assignment.ID, assignment, "status", "end_date"); err != nil {
			return err
		}

		room, err := s.store.Rooms.Tx(tx).GetByID(ctx, scope, assignment.RoomID)
		if err != nil {
			return err
		}
		if room.Occupied > 0 {
			room.Occupied--
			if err := s.store.Rooms.Tx(tx).Update(ctx, scope, room.ID, room, "occupied"); err != nil {
				return err
			}
		}
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     audit.ActionAssignmentEnd,
			TargetType: "assignment",
			TargetID:   assignment.ID,
			Details:    map[string]any{"room_id": room.ID},
		})
	})
	if err != nil {
		return fmt.Errorf("end assignment: %w", err)
	}
	return nil
}
