package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/mailer"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"
)

// MaxContractSize 合同 PDF 解码后的上限
const MaxContractSize = 5 << 20

// AdminService 管理面板统计与合同发送
type AdminService struct {
	db   database.DatabaseInterface
	mail mailer.Mailer
}

func NewAdminService(db database.DatabaseInterface, mail mailer.Mailer) *AdminService {
	return &AdminService{db: db, mail: mail}
}

// Stats 各状态的申请、成员与项目数量
func (s *AdminService) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.db.Stats(ctx)
	if err != nil {
		return nil, storeError(err, "stats")
	}
	return stats, nil
}

// SendContract 校验 PDF 后作为附件发送
// Unlike credential emails, delivery failure is reported to the caller.
func (s *AdminService) SendContract(ctx context.Context, req models.ContractSendRequest) error {
	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Filename = strings.TrimSpace(req.Filename)
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(req.Filename), ".pdf") {
		req.Filename += ".pdf"
	}

	if base64.StdEncoding.DecodedLen(len(req.PDFBase64)) > MaxContractSize+3 {
		return apperror.Validation("contract must be at most 5 MiB")
	}
	pdf, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		return apperror.Validation("pdf_base64 must be base64 encoded")
	}
	if len(pdf) > MaxContractSize {
		return apperror.Validation("contract must be at most 5 MiB")
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return apperror.Validation("contract must be a PDF document")
	}

	if err := s.mail.SendContract(ctx, req.Email, req.FullName, req.Filename, pdf); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("to", req.Email).Error("❌ Failed to send contract")
		return apperror.Internal(err, "failed to send contract")
	}
	logging.FromContext(ctx).WithField("to", req.Email).WithField("size", len(pdf)).Info("📄 Contract sent")
	return nil
}
