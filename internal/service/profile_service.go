package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/apperr"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// ProfileService manages the authenticated user's own account
type ProfileService struct {
	db      *gorm.DB
	courses *CourseService
	now     func() time.Time
}

// NewProfileService creates a profile service
func NewProfileService(db *gorm.DB, courses *CourseService) *ProfileService {
	return &ProfileService{db: db, courses: courses, now: time.Now}
}

// LearningStats summarises a learner's enrollments
type LearningStats struct {
	TotalEnrollments   int64   `json:"total_enrollments"`
	ActiveEnrollments  int64   `json:"active_enrollments"`
	CompletedCourses   int64   `json:"completed_courses"`
	CertificatesEarned int64   `json:"certificates_earned"`
	TotalTimeMinutes   int64   `json:"total_time_spent_minutes"`
	AverageProgress    float64 `json:"average_progress"`
	LearningStreakDays int     `json:"learning_streak_days"`
}

// Profile is the user with their stats
type Profile struct {
	User  *model.User    `json:"user"`
	Stats *LearningStats `json:"stats"`
}

// UpdateProfileInput carries optional profile fields; nil leaves a field as is
type UpdateProfileInput struct {
	Name        *string
	Phone       *string
	Bio         *string
	AvatarURL   *string
	DateOfBirth *string
	Gender      *string
	Country     *string
	Timezone    *string
	Language    *string
}

// Dashboard is the learner's landing page
type Dashboard struct {
	Stats              *LearningStats     `json:"stats"`
	ContinueLearning   []model.Enrollment `json:"continue_learning"`
	RecentEnrollments  []model.Enrollment `json:"recent_enrollments"`
	RecommendedCourses []model.Course     `json:"recommended_courses"`
}

// ActivityEvent is one dated learning event
type ActivityEvent struct {
	Type        string    `json:"type"`
	CourseID    uint      `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	At          time.Time `json:"at"`
}

// ActivityDay groups the events of one calendar day
type ActivityDay struct {
	Date   string          `json:"date"`
	Events []ActivityEvent `json:"events"`
}

func (s *ProfileService) user(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Preload("Roles").First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err, "User not found")
	}
	return &user, nil
}

// Stats computes the learner's enrollment statistics
func (s *ProfileService) Stats(ctx context.Context, userID uint) (*LearningStats, error) {
	db := s.db.WithContext(ctx)
	stats := &LearningStats{}

	var agg struct {
		Total     int64
		Active    int64
		Completed int64
		Minutes   int64
		Progress  float64
	}
	err := db.Model(&model.Enrollment{}).
		Select(`COUNT(*) AS total,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS active,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS completed,
			CAST(COALESCE(SUM(time_spent_minutes), 0) AS BIGINT) AS minutes,
			CAST(COALESCE(AVG(progress_percentage), 0) AS FLOAT) AS progress`,
			model.EnrollmentActive, model.EnrollmentCompleted).
		Where("user_id = ?", userID).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	stats.TotalEnrollments = agg.Total
	stats.ActiveEnrollments = agg.Active
	stats.CompletedCourses = agg.Completed
	stats.TotalTimeMinutes = agg.Minutes
	stats.AverageProgress = math.Round(agg.Progress*100) / 100

	if err := db.Model(&model.Certificate{}).Where("user_id = ?", userID).Count(&stats.CertificatesEarned).Error; err != nil {
		return nil, fmt.Errorf("failed to count certificates: %w", err)
	}

	var completions []time.Time
	if err := db.Model(&model.ChapterProgress{}).Where("user_id = ?", userID).Pluck("completed_at", &completions).Error; err != nil {
		return nil, fmt.Errorf("failed to load chapter progress: %w", err)
	}
	stats.LearningStreakDays = streak(completions, s.now())
	return stats, nil
}

// streak counts consecutive days with activity ending today, or yesterday when
// nothing happened yet today
func streak(times []time.Time, now time.Time) int {
	days := make(map[string]bool, len(times))
	for _, t := range times {
		days[t.UTC().Format(dateLayout)] = true
	}
	day := now.UTC()
	if !days[day.Format(dateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for days[day.Format(dateLayout)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

// Profile returns the user with learning stats
func (s *ProfileService) Profile(ctx context.Context, userID uint) (*Profile, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Stats: stats}, nil
}

// Update applies the non-nil fields of in
func (s *ProfileService) Update(ctx context.Context, userID uint, in UpdateProfileInput) (*model.User, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Phone != nil {
		updates["phone"] = *in.Phone
	}
	if in.Bio != nil {
		updates["bio"] = *in.Bio
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = *in.AvatarURL
	}
	if in.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, *in.DateOfBirth)
		if err != nil {
			return nil, apperr.FieldError("date_of_birth", "The date of birth is not a valid date.")
		}
		if !dob.Before(s.now()) {
			return nil, apperr.FieldError("date_of_birth", "The date of birth must be a date before today.")
		}
		updates["date_of_birth"] = dob
	}
	if in.Gender != nil {
		updates["gender"] = *in.Gender
	}
	if in.Country != nil {
		updates["country"] = *in.Country
	}
	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil {
			return nil, apperr.FieldError("timezone", "The timezone must be a valid zone.")
		}
		updates["timezone"] = *in.Timezone
	}
	if in.Language != nil {
		updates["language"] = *in.Language
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	logger.FromContext(ctx).Info("Profile updated", zap.Uint("user_id", userID), zap.Int("fields", len(updates)))
	return s.user(ctx, userID)
}

// ChangePassword replaces the password after checking the current one and
// revokes every refresh token of the user
func (s *ProfileService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)) != nil {
		return apperr.FieldError("current_password", "The current password is incorrect.")
	}
	if current == next {
		return apperr.FieldError("password", "The new password must be different from the current password.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("id = ?", userID).Update("password", string(hash)).Error; err != nil {
			return err
		}
		return tx.Model(&model.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Update("revoked", true).Error
	})
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	logger.FromContext(ctx).Info("Password changed", zap.Uint("user_id", userID))
	return nil
}

// Dashboard collects stats, in-progress courses, recent enrollments and
// recommendations
func (s *ProfileService) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	dash := &Dashboard{Stats: stats}

	err = db.Preload("Course").
		Where("user_id = ? AND status = ?", userID, model.EnrollmentActive).
		Order("last_accessed_at DESC, enrolled_at DESC").
		Limit(5).
		Find(&dash.ContinueLearning).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active enrollments: %w", err)
	}

	err = db.Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC, id DESC").
		Limit(5).
		Find(&dash.RecentEnrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent enrollments: %w", err)
	}

	enrolled := db.Model(&model.Enrollment{}).Select("course_id").Where("user_id = ?", userID)
	err = s.courses.published(db).
		Preload("Category").
		Where("courses.id NOT IN (?)", enrolled).
		Order("courses.is_featured DESC, courses.id DESC").
		Limit(4).
		Find(&dash.RecommendedCourses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}
	return dash, nil
}

// Activity returns the user's learning events of the last days, newest day
// first
func (s *ProfileService) Activity(ctx context.Context, userID uint, days int) ([]ActivityDay, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := s.now().AddDate(0, 0, -days)
	db := s.db.WithContext(ctx)

	var enrollments []model.Enrollment
	err := db.Preload("Course").
		Where("user_id = ? AND (enrolled_at >= ? OR completed_at >= ? OR cancelled_at >= ?)", userID, since, since, since).
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	var events []ActivityEvent
	add := func(kind string, e model.Enrollment, at *time.Time) {
		if at == nil || at.Before(since) {
			return
		}
		ev := ActivityEvent{Type: kind, CourseID: e.CourseID, At: *at}
		if e.Course != nil {
			ev.CourseTitle = e.Course.Title
		}
		events = append(events, ev)
	}
	byEnrollment := make(map[uint]model.Enrollment, len(enrollments))
	for _, e := range enrollments {
		enrolledAt := e.EnrolledAt
		add("enrolled", e, &enrolledAt)
		add("completed", e, e.CompletedAt)
		add("cancelled", e, e.CancelledAt)
		byEnrollment[e.ID] = e
	}

	var progress []model.ChapterProgress
	if err := db.Where("user_id = ? AND completed_at >= ?", userID, since).Find(&progress).Error; err != nil {
		return nil, fmt.Errorf("failed to load chapter activity: %w", err)
	}
	if len(progress) > 0 {
		var owners []model.Enrollment
		ids := make([]uint, 0, len(progress))
		for _, p := range progress {
			if _, ok := byEnrollment[p.EnrollmentID]; !ok {
				ids = append(ids, p.EnrollmentID)
			}
		}
		if len(ids) > 0 {
			if err := db.Preload("Course").Where("id IN ?", ids).Find(&owners).Error; err != nil {
				return nil, fmt.Errorf("failed to load chapter courses: %w", err)
			}
			for _, e := range owners {
				byEnrollment[e.ID] = e
			}
		}
		for _, p := range progress {
			at := p.CompletedAt
			add("chapter_completed", byEnrollment[p.EnrollmentID], &at)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].At.After(events[j].At) })

	out := []ActivityDay{}
	for _, ev := range events {
		date := ev.At.UTC().Format(dateLayout)
		if len(out) == 0 || out[len(out)-1].Date != date {
			out = append(out, ActivityDay{Date: date})
		}
		out[len(out)-1].Events = append(out[len(out)-1].Events, ev)
	}
	return out, nil
}
