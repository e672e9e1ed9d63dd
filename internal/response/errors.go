package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"
	ErrAttemptNotOwned   ErrCode = "ATTEMPT_NOT_OWNED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound         ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotPublished     ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrOutsideExamWindow    ErrCode = "OUTSIDE_EXAM_WINDOW"
	ErrAttemptLimitExceeded ErrCode = "ATTEMPT_LIMIT_EXCEEDED"
	ErrAttemptNotFound      ErrCode = "ATTEMPT_NOT_FOUND"
	ErrQuestionNotInExam    ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrExamNotInProgress    ErrCode = "EXAM_NOT_IN_PROGRESS"
	ErrInvalidTransition    ErrCode = "INVALID_TRANSITION"
	ErrResultsNotAvailable  ErrCode = "RESULTS_NOT_AVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrTokenRequired: "Token autentikasi diperlukan.",
	ErrTokenInvalid:  "Token autentikasi tidak valid.",

	ErrForbidden:         "Anda tidak memiliki izin untuk mengakses sumber daya ini.",
	ErrPermissionDenied:  "Izin ditolak.",
	ErrStudentAccessOnly: "Sumber daya ini terbatas untuk siswa.",
	ErrAdminAccessOnly:   "Sumber daya ini terbatas untuk administrator.",
	ErrAttemptNotOwned:   "Percobaan ujian ini bukan milik Anda.",

	ErrValidation:     "Validasi gagal. Silakan periksa masukan Anda.",
	ErrInvalidID:      "Format ID tidak valid.",
	ErrInvalidPayload: "Payload permintaan tidak valid.",

	ErrNotFound: "Sumber daya tidak ditemukan.",
	ErrConflict: "Sumber daya sudah ada.",

	ErrExamNotFound:         "Ujian tidak ditemukan.",
	ErrExamNotPublished:     "Ujian ini belum dipublikasikan.",
	ErrNoQuestions:          "Ujian ini tidak memiliki pertanyaan.",
	ErrOutsideExamWindow:    "Ujian tidak dapat dimulai di luar jadwal pelaksanaan.",
	ErrAttemptLimitExceeded: "Batas jumlah percobaan ujian telah tercapai.",
	ErrAttemptNotFound:      "Percobaan ujian tidak ditemukan.",
	ErrQuestionNotInExam:    "Soal tidak termasuk dalam ujian ini.",
	ErrExamNotInProgress:    "Ujian tidak sedang berlangsung atau waktu telah habis.",
	ErrInvalidTransition:    "Status percobaan ujian tidak mengizinkan tindakan ini.",
	ErrResultsNotAvailable:  "Hasil ujian belum tersedia.",

	ErrRateLimitExceeded: "Terlalu banyak permintaan. Silakan coba lagi nanti.",

	ErrInternal: "Terjadi kesalahan server internal.",
}

// GetMessage returns the Indonesian message shown to clients for code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "Terjadi kesalahan yang tidak terduga."
}
