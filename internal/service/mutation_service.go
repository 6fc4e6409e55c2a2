package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/watch"
)

type mutationSubjectStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
	ExistsByCodeDescription(ctx context.Context, exec sqlx.ExtContext, code, description, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type mutationInstructorStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Instructor, error)
	ExistsByName(ctx context.Context, exec sqlx.ExtContext, name, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type mutationCrossRefStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CrossRef, error)
	ListBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) ([]models.CrossRef, error)
	ListByInstructor(ctx context.Context, exec sqlx.ExtContext, instructorID string) ([]models.CrossRef, error)
	ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.CrossRef, error)
	ExistsPair(ctx context.Context, exec sqlx.ExtContext, subjectID string, instructorID *string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, ref *models.CrossRef) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	DeleteBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int64, error)
	ClearInstructor(ctx context.Context, exec sqlx.ExtContext, instructorID string) (int64, error)
	AssignInstructor(ctx context.Context, exec sqlx.ExtContext, ids []string, instructorID string) (int64, error)
}

type mutationTimetableStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error)
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type mutationSessionStore interface {
	ListByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) ([]models.Session, error)
	ListByCrossRefs(ctx context.Context, exec sqlx.ExtContext, crossRefIDs []string) ([]models.Session, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error
	ClearCrossRefs(ctx context.Context, exec sqlx.ExtContext, crossRefIDs []string) (int64, error)
	Restore(ctx context.Context, exec sqlx.ExtContext, s models.Session) (int64, error)
	DeleteByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) (int64, error)
}

// MutationStores groups the storage ports the coordinator writes through.
type MutationStores struct {
	Subjects    mutationSubjectStore
	Instructors mutationInstructorStore
	CrossRefs   mutationCrossRefStore
	Timetables  mutationTimetableStore
	Sessions    mutationSessionStore
}

// MutationService performs cascading deletes and their single-step undo. Each
// call runs in one transaction, so the grid never references a missing
// schedule entry once it returns.
type MutationService struct {
	stores  MutationStores
	tx      txProvider
	feed    changeFeed
	metrics *MetricsService
	logger  *zap.Logger
}

// MutationServiceOption configures the service.
type MutationServiceOption func(*MutationService)

// WithMutationNotifier announces committed changes to live observers.
func WithMutationNotifier(n *watch.Notifier) MutationServiceOption {
	return func(s *MutationService) { s.feed.notifier = n }
}

// WithMutationCache drops cached timetable views after each commit.
func WithMutationCache(cache *ViewCache) MutationServiceOption {
	return func(s *MutationService) { s.feed.cache = cache }
}

// WithMutationMetrics records cascade sizes and undo outcomes.
func WithMutationMetrics(metrics *MetricsService) MutationServiceOption {
	return func(s *MutationService) { s.metrics = metrics }
}

// NewMutationService constructs the coordinator.
func NewMutationService(stores MutationStores, tx txProvider, logger *zap.Logger, opts ...MutationServiceOption) *MutationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &MutationService{stores: stores, tx: tx, feed: changeFeed{logger: logger}, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// DeleteSubject removes a subject with its schedule entries and empties every
// cell that pointed at them.
func (s *MutationService) DeleteSubject(ctx context.Context, id string) (*models.SubjectDeletion, error) {
	var packet models.SubjectDeletion
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		subject, err := s.stores.Subjects.FindByID(ctx, tx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrReferential, "subject does not exist", "failed to load subject")
		}
		refs, err := s.stores.CrossRefs.ListBySubject(ctx, tx, id)
		if err != nil {
			return storageError(err, "", "failed to load schedule entries")
		}
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
		sessions, err := s.emptySessions(ctx, tx, ids)
		if err != nil {
			return err
		}

		deleted, err := s.stores.CrossRefs.DeleteBySubject(ctx, tx, id)
		if err != nil {
			return storageError(err, "", "failed to delete schedule entries")
		}
		if deleted != int64(len(refs)) {
			return appErrors.Clone(appErrors.ErrReferential, fmt.Sprintf("expected to delete %d schedule entries, deleted %d", len(refs), deleted))
		}
		if err := s.stores.Subjects.Delete(ctx, tx, id); err != nil {
			return storageError(err, "", "failed to delete subject")
		}

		packet = models.SubjectDeletion{Subject: *subject, CrossRefs: refs, Sessions: sessions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCascade(string(models.UndoKindSubjectDeleted), len(packet.Sessions))
	s.committed(ctx, TopicSubjects, TopicCrossRefs, TopicSessions)
	s.logger.Info("subject deleted",
		zap.String("subject_id", id),
		zap.Int("cross_refs", len(packet.CrossRefs)),
		zap.Int("sessions", len(packet.Sessions)),
	)
	return &packet, nil
}

// DeleteInstructor removes an instructor. Their schedule entries survive
// without an instructor, so no cell changes.
func (s *MutationService) DeleteInstructor(ctx context.Context, id string) (*models.InstructorDeletion, error) {
	var packet models.InstructorDeletion
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		instructor, err := s.stores.Instructors.FindByID(ctx, tx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "instructor not found", "failed to load instructor")
		}
		refs, err := s.stores.CrossRefs.ListByInstructor(ctx, tx, id)
		if err != nil {
			return storageError(err, "", "failed to load schedule entries")
		}
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			exists, err := s.stores.CrossRefs.ExistsPair(ctx, tx, ref.SubjectID, nil, ref.ID)
			if err != nil {
				return storageError(err, "", "failed to check schedule entries")
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "a schedule entry without instructor already exists for one of this instructor's subjects")
			}
			ids = append(ids, ref.ID)
		}

		cleared, err := s.stores.CrossRefs.ClearInstructor(ctx, tx, id)
		if err != nil {
			return storageError(err, "a schedule entry without instructor already exists for one of this instructor's subjects", "failed to detach instructor")
		}
		if cleared != int64(len(ids)) {
			return appErrors.Clone(appErrors.ErrReferential, fmt.Sprintf("expected to detach %d schedule entries, detached %d", len(ids), cleared))
		}
		if err := s.stores.Instructors.Delete(ctx, tx, id); err != nil {
			return storageError(err, "", "failed to delete instructor")
		}

		packet = models.InstructorDeletion{Instructor: *instructor, CrossRefIDs: ids}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCascade(string(models.UndoKindInstructorDeleted), 0)
	s.committed(ctx, TopicInstructors, TopicCrossRefs)
	s.logger.Info("instructor deleted", zap.String("instructor_id", id), zap.Int("cross_refs", len(packet.CrossRefIDs)))
	return &packet, nil
}

// DeleteCrossRef removes one schedule entry and empties the cells of every
// timetable that used it.
func (s *MutationService) DeleteCrossRef(ctx context.Context, id string) (*models.CrossRefDeletion, error) {
	var packet models.CrossRefDeletion
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		ref, err := s.stores.CrossRefs.FindByID(ctx, tx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "schedule entry not found", "failed to load schedule entry")
		}
		sessions, err := s.emptySessions(ctx, tx, []string{id})
		if err != nil {
			return err
		}
		if err := s.stores.CrossRefs.Delete(ctx, tx, id); err != nil {
			return storageError(err, "", "failed to delete schedule entry")
		}
		packet = models.CrossRefDeletion{CrossRef: *ref, Sessions: sessions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCascade(string(models.UndoKindCrossRefDeleted), len(packet.Sessions))
	s.committed(ctx, TopicCrossRefs, TopicSessions)
	s.logger.Info("schedule entry deleted", zap.String("cross_ref_id", id), zap.Int("sessions", len(packet.Sessions)))
	return &packet, nil
}

// DeleteTimetable removes a timetable and its grid, returning enough to
// rebuild both.
func (s *MutationService) DeleteTimetable(ctx context.Context, id string) (*models.TimetableDeletion, error) {
	var packet models.TimetableDeletion
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		timetable, err := s.stores.Timetables.FindByID(ctx, tx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "timetable not found", "failed to load timetable")
		}
		sessions, err := s.stores.Sessions.ListByTimetable(ctx, tx, id)
		if err != nil {
			return storageError(err, "", "failed to load sessions")
		}
		if _, err := s.stores.Sessions.DeleteByTimetable(ctx, tx, id); err != nil {
			return storageError(err, "", "failed to delete sessions")
		}
		if err := s.stores.Timetables.Delete(ctx, tx, id); err != nil {
			return storageError(err, "", "failed to delete timetable")
		}
		packet = models.TimetableDeletion{Timetable: *timetable, Sessions: sessions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCascade(string(models.UndoKindTimetableDeleted), len(packet.Sessions))
	s.committed(ctx, TopicTimetables, TopicSessions)
	s.logger.Info("timetable deleted", zap.String("timetable_id", id), zap.Int("sessions", len(packet.Sessions)))
	return &packet, nil
}

// Undo replays the inverse of a delete. Packets are single use; nothing is
// committed when a restored entity would collide with one created since.
func (s *MutationService) Undo(ctx context.Context, packet models.UndoPacket) error {
	if packet == nil {
		return appErrors.Clone(appErrors.ErrValidation, "undo packet is required")
	}

	var topics []string
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		switch p := packet.(type) {
		case models.SubjectDeletion:
			topics = []string{TopicSubjects, TopicCrossRefs, TopicSessions}
			return s.undoSubject(ctx, tx, p)
		case *models.SubjectDeletion:
			topics = []string{TopicSubjects, TopicCrossRefs, TopicSessions}
			return s.undoSubject(ctx, tx, *p)
		case models.InstructorDeletion:
			topics = []string{TopicInstructors, TopicCrossRefs}
			return s.undoInstructor(ctx, tx, p)
		case *models.InstructorDeletion:
			topics = []string{TopicInstructors, TopicCrossRefs}
			return s.undoInstructor(ctx, tx, *p)
		case models.CrossRefDeletion:
			topics = []string{TopicCrossRefs, TopicSessions}
			return s.undoCrossRef(ctx, tx, p)
		case *models.CrossRefDeletion:
			topics = []string{TopicCrossRefs, TopicSessions}
			return s.undoCrossRef(ctx, tx, *p)
		case models.TimetableDeletion:
			topics = []string{TopicTimetables, TopicSessions}
			return s.undoTimetable(ctx, tx, p)
		case *models.TimetableDeletion:
			topics = []string{TopicTimetables, TopicSessions}
			return s.undoTimetable(ctx, tx, *p)
		default:
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported undo packet %T", packet))
		}
	})

	outcome := "success"
	if err != nil {
		outcome = "failed"
		if appErrors.HasCode(err, appErrors.ErrConflict.Code) {
			outcome = "conflict"
		}
	}
	s.metrics.RecordUndo(string(packet.UndoKind()), outcome)
	if err != nil {
		s.logger.Warn("undo failed", zap.String("kind", string(packet.UndoKind())), zap.Error(err))
		return err
	}

	s.committed(ctx, topics...)
	s.logger.Info("undo applied", zap.String("kind", string(packet.UndoKind())))
	return nil
}

func (s *MutationService) undoSubject(ctx context.Context, tx *sqlx.Tx, p models.SubjectDeletion) error {
	subject := p.Subject
	exists, err := s.stores.Subjects.ExistsByCodeDescription(ctx, tx, subject.Code, subject.Description, "")
	if err != nil {
		return storageError(err, "", "failed to check subject")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %s (%s) already exists", subject.Code, subject.Description))
	}
	if err := s.stores.Subjects.Create(ctx, tx, &subject); err != nil {
		return storageError(err, fmt.Sprintf("subject %s (%s) already exists", subject.Code, subject.Description), "failed to restore subject")
	}

	restored := make(map[string]struct{}, len(p.CrossRefs))
	for _, ref := range p.CrossRefs {
		if err := s.restoreCrossRef(ctx, tx, ref); err != nil {
			return err
		}
		restored[ref.ID] = struct{}{}
	}
	return s.restoreSessions(ctx, tx, p.Sessions, restored)
}

func (s *MutationService) undoInstructor(ctx context.Context, tx *sqlx.Tx, p models.InstructorDeletion) error {
	instructor := p.Instructor
	exists, err := s.stores.Instructors.ExistsByName(ctx, tx, instructor.Name, "")
	if err != nil {
		return storageError(err, "", "failed to check instructor")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("instructor %q already exists", instructor.Name))
	}
	if err := s.stores.Instructors.Create(ctx, tx, &instructor); err != nil {
		return storageError(err, fmt.Sprintf("instructor %q already exists", instructor.Name), "failed to restore instructor")
	}

	live, err := s.stores.CrossRefs.ListByIDs(ctx, tx, p.CrossRefIDs)
	if err != nil {
		return storageError(err, "", "failed to load schedule entries")
	}
	ids := make([]string, 0, len(live))
	for _, ref := range live {
		if ref.InstructorID != nil {
			continue
		}
		clash, err := s.stores.CrossRefs.ExistsPair(ctx, tx, ref.SubjectID, &instructor.ID, ref.ID)
		if err != nil {
			return storageError(err, "", "failed to check schedule entries")
		}
		if clash {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("instructor %q is already paired with one of the subjects again", instructor.Name))
		}
		ids = append(ids, ref.ID)
	}
	if skipped := len(p.CrossRefIDs) - len(ids); skipped > 0 {
		s.logger.Info("some schedule entries changed since the instructor was deleted",
			zap.String("instructor_id", instructor.ID), zap.Int("skipped", skipped))
	}

	assigned, err := s.stores.CrossRefs.AssignInstructor(ctx, tx, ids, instructor.ID)
	if err != nil {
		return storageError(err, fmt.Sprintf("instructor %q is already paired with one of the subjects again", instructor.Name), "failed to re-attach instructor")
	}
	if assigned != int64(len(ids)) {
		return appErrors.Clone(appErrors.ErrReferential, fmt.Sprintf("expected to re-attach %d schedule entries, re-attached %d", len(ids), assigned))
	}
	return nil
}

func (s *MutationService) undoCrossRef(ctx context.Context, tx *sqlx.Tx, p models.CrossRefDeletion) error {
	if _, err := s.stores.Subjects.FindByID(ctx, tx, p.CrossRef.SubjectID); err != nil {
		return lookupError(err, appErrors.ErrNotFound, "the subject of this schedule entry no longer exists", "failed to load subject")
	}
	if err := s.restoreCrossRef(ctx, tx, p.CrossRef); err != nil {
		return err
	}
	return s.restoreSessions(ctx, tx, p.Sessions, map[string]struct{}{p.CrossRef.ID: {}})
}

func (s *MutationService) undoTimetable(ctx context.Context, tx *sqlx.Tx, p models.TimetableDeletion) error {
	timetable := p.Timetable
	if err := s.stores.Timetables.Create(ctx, tx, &timetable); err != nil {
		return storageError(err, fmt.Sprintf("timetable %q already exists", timetable.Name), "failed to restore timetable")
	}

	live, err := s.liveCrossRefs(ctx, tx, crossRefIDs(p.Sessions))
	if err != nil {
		return err
	}
	sessions := make([]models.Session, 0, len(p.Sessions))
	for _, session := range p.Sessions {
		if !timetable.Contains(session.DayOfWeek, session.StartTime) {
			continue
		}
		if id, ok := session.CrossRefID(); ok {
			if _, found := live[id]; !found {
				s.logger.Info("schedule entry gone, restoring cell as empty", zap.String("cross_ref_id", id))
				session.Content = models.EmptyContent{}
			}
		}
		session.TimetableID = timetable.ID
		sessions = append(sessions, session)
	}
	if err := s.stores.Sessions.InsertBatch(ctx, tx, sessions); err != nil {
		return storageError(err, "timetable cells already exist", "failed to restore sessions")
	}
	return nil
}

// restoreCrossRef re-inserts a schedule entry, dropping an instructor that has
// been deleted in the meantime.
func (s *MutationService) restoreCrossRef(ctx context.Context, tx *sqlx.Tx, ref models.CrossRef) error {
	if ref.InstructorID != nil {
		if _, err := s.stores.Instructors.FindByID(ctx, tx, *ref.InstructorID); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return storageError(err, "", "failed to load instructor")
			}
			s.logger.Info("instructor gone, restoring schedule entry without instructor",
				zap.String("cross_ref_id", ref.ID), zap.String("instructor_id", *ref.InstructorID))
			ref.InstructorID = nil
		}
	}

	exists, err := s.stores.CrossRefs.ExistsPair(ctx, tx, ref.SubjectID, ref.InstructorID, ref.ID)
	if err != nil {
		return storageError(err, "", "failed to check schedule entries")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "an equivalent schedule entry was created after the delete")
	}
	if err := s.stores.CrossRefs.Create(ctx, tx, &ref); err != nil {
		return storageError(err, "an equivalent schedule entry was created after the delete", "failed to restore schedule entry")
	}
	return nil
}

// restoreSessions writes captured cell contents back. Cells that no longer
// exist are skipped and subject cells whose entry is neither restored nor live
// stay empty.
func (s *MutationService) restoreSessions(ctx context.Context, tx *sqlx.Tx, sessions []models.Session, restored map[string]struct{}) error {
	var unknown []string
	for _, id := range crossRefIDs(sessions) {
		if _, ok := restored[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	live, err := s.liveCrossRefs(ctx, tx, unknown)
	if err != nil {
		return err
	}

	skipped := 0
	for _, session := range sessions {
		if id, ok := session.CrossRefID(); ok {
			_, wasRestored := restored[id]
			_, isLive := live[id]
			if !wasRestored && !isLive {
				skipped++
				continue
			}
		}
		n, err := s.stores.Sessions.Restore(ctx, tx, session)
		if err != nil {
			return storageError(err, "", "failed to restore session")
		}
		if n == 0 {
			skipped++
		}
	}
	if skipped > 0 {
		s.logger.Info("some cells could not be restored", zap.Int("skipped", skipped), zap.Int("total", len(sessions)))
	}
	return nil
}

func (s *MutationService) liveCrossRefs(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]struct{}, error) {
	live := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return live, nil
	}
	refs, err := s.stores.CrossRefs.ListByIDs(ctx, tx, ids)
	if err != nil {
		return nil, storageError(err, "", "failed to load schedule entries")
	}
	for _, ref := range refs {
		live[ref.ID] = struct{}{}
	}
	return live, nil
}

// emptySessions captures the cells pointing at ids and converts them to Empty.
func (s *MutationService) emptySessions(ctx context.Context, tx *sqlx.Tx, ids []string) ([]models.Session, error) {
	sessions, err := s.stores.Sessions.ListByCrossRefs(ctx, tx, ids)
	if err != nil {
		return nil, storageError(err, "", "failed to load sessions")
	}
	cleared, err := s.stores.Sessions.ClearCrossRefs(ctx, tx, ids)
	if err != nil {
		return nil, storageError(err, "", "failed to empty sessions")
	}
	if cleared != int64(len(sessions)) {
		return nil, appErrors.Clone(appErrors.ErrReferential, fmt.Sprintf("expected to empty %d sessions, emptied %d", len(sessions), cleared))
	}
	return sessions, nil
}

func (s *MutationService) committed(ctx context.Context, topics ...string) {
	s.feed.publish(ctx, topics...)
}
