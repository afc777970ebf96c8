// services/stats_service.go
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"referral-tracking-system/models"
	"referral-tracking-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TopReferrersLimit is the leaderboard size shown to admins.
const TopReferrersLimit = 10

// StatsService computes read-only aggregates for admin consumption.
type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// ReferrerStat is one leaderboard row.
type ReferrerStat struct {
	TgID      int64   `json:"tg_id"`
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Count     int64   `json:"count"`
}

// BankStat is the referral count for one bank key.
type BankStat struct {
	BankKey string `json:"bank_key"`
	Count   int64  `json:"count"`
}

// CountUsers returns the total number of registered users.
func (s *StatsService) CountUsers() (int64, error) {
	var count int64
	err := s.DB.Model(&models.User{}).Count(&count).Error
	return count, err
}

// TopReferrers ranks users by referral count descending. Ties break on
// registration time so the ordering is deterministic.
func (s *StatsService) TopReferrers(limit int) ([]ReferrerStat, error) {
	var stats []ReferrerStat
	err := s.DB.Table("users").
		Select("users.tg_id, users.username, users.first_name, users.last_name, COUNT(referrals.id) AS count").
		Joins("JOIN referrals ON referrals.referrer_id = users.id").
		Group("users.id").
		Order("count DESC, users.created_at ASC, users.tg_id ASC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}

// ReferralsByBank groups referral counts by bank tag, descending. Tags of
// since-deleted banks still show up — the edges are history.
func (s *StatsService) ReferralsByBank() ([]BankStat, error) {
	var stats []BankStat
	err := s.DB.Table("referrals").
		Select("bank_key, COUNT(id) AS count").
		Group("bank_key").
		Order("count DESC, bank_key ASC").
		Scan(&stats).Error
	return stats, err
}

// CountRewardRequestsByStatus buckets requests by status. Every bucket is
// present; empty ones report zero.
func (s *StatsService) CountRewardRequestsByStatus() (map[models.RewardRequestStatus]int64, error) {
	counts := map[models.RewardRequestStatus]int64{
		models.RewardStatusPending:  0,
		models.RewardStatusApproved: 0,
		models.RewardStatusRejected: 0,
	}

	var rows []struct {
		Status models.RewardRequestStatus
		Count  int64
	}
	err := s.DB.Table("reward_requests").
		Select("status, COUNT(id) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// BuildReferralStatsCSV renders the leaderboard and per-bank counts as
// type,key,count rows.
func (s *StatsService) BuildReferralStatsCSV() ([]byte, error) {
	top, err := s.TopReferrers(TopReferrersLimit)
	if err != nil {
		return nil, err
	}
	byBank, err := s.ReferralsByBank()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"type", "key", "count"})
	for _, row := range top {
		_ = w.Write([]string{"top_referrer", strconv.FormatInt(row.TgID, 10), strconv.FormatInt(row.Count, 10)})
	}
	for _, row := range byBank {
		_ = w.Write([]string{"bank", row.BankKey, strconv.FormatInt(row.Count, 10)})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// BuildRequestStatsCSV renders user and reward-request totals as
// metric,count rows.
func (s *StatsService) BuildRequestStatsCSV() ([]byte, error) {
	total, err := s.CountUsers()
	if err != nil {
		return nil, err
	}
	byStatus, err := s.CountRewardRequestsByStatus()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"metric", "count"})
	_ = w.Write([]string{"total_users", strconv.FormatInt(total, 10)})
	for _, status := range []models.RewardRequestStatus{
		models.RewardStatusPending, models.RewardStatusApproved, models.RewardStatusRejected,
	} {
		_ = w.Write([]string{"requests_" + string(status), strconv.FormatInt(byStatus[status], 10)})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportToR2 uploads both CSV snapshots under a date-stamped key and
// returns their URLs.
func (s *StatsService) ExportToR2(ctx context.Context) ([]string, error) {
	if !utils.R2Enabled() {
		return nil, fmt.Errorf("R2 is not configured")
	}

	date := time.Now().UTC().Format("2006-01-02")
	var urls []string

	referrals, err := s.BuildReferralStatsCSV()
	if err != nil {
		return nil, err
	}
	url, err := utils.UploadBytesToR2(ctx, fmt.Sprintf("stats/referrals-%s.csv", date), referrals, "text/csv")
	if err != nil {
		return nil, err
	}
	urls = append(urls, url)

	requests, err := s.BuildRequestStatsCSV()
	if err != nil {
		return nil, err
	}
	url, err = utils.UploadBytesToR2(ctx, fmt.Sprintf("stats/requests-%s.csv", date), requests, "text/csv")
	if err != nil {
		return nil, err
	}
	urls = append(urls, url)

	return urls, nil
}

// --- Admin Handlers ---

// HandleStats returns the full aggregate summary.
func (s *StatsService) HandleStats(c *fiber.Ctx) error {
	total, err := s.CountUsers()
	if err != nil {
		logrus.Errorf("[STATS] user count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute stats"})
	}
	top, err := s.TopReferrers(TopReferrersLimit)
	if err != nil {
		logrus.Errorf("[STATS] top referrers failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute stats"})
	}
	byBank, err := s.ReferralsByBank()
	if err != nil {
		logrus.Errorf("[STATS] referrals by bank failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute stats"})
	}
	byStatus, err := s.CountRewardRequestsByStatus()
	if err != nil {
		logrus.Errorf("[STATS] request buckets failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute stats"})
	}

	return c.JSON(fiber.Map{
		"total_users":       total,
		"top_referrers":     top,
		"referrals_by_bank": byBank,
		"reward_requests":   byStatus,
	})
}

// HandleExport streams a CSV snapshot: ?kind=referrals (default) or
// ?kind=requests.
func (s *StatsService) HandleExport(c *fiber.Ctx) error {
	kind := c.Query("kind", "referrals")

	var (
		data []byte
		err  error
	)
	switch kind {
	case "referrals":
		data, err = s.BuildReferralStatsCSV()
	case "requests":
		data, err = s.BuildRequestStatsCSV()
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind must be referrals or requests"})
	}
	if err != nil {
		logrus.Errorf("[STATS] export failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to build export"})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stats-%s.csv"`, kind))
	return c.Send(data)
}
