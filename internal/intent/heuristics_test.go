package intent

import (
	"testing"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		action domain.Action
		args   domain.ActionArgs
	}{
		{"list", "Покажи список тендеров", domain.ActionListStores, domain.ActionArgs{}},
		{"list english", "list all stores", domain.ActionListStores, domain.ActionArgs{}},
		{"status", "Какой статус?", domain.ActionStatus, domain.ActionArgs{}},
		{"clear", "Очисти историю диалога", domain.ActionClearMemory, domain.ActionArgs{}},
		{"export pdf", "Сделай экспорт в PDF", domain.ActionExport, domain.ActionArgs{Format: "pdf"}},
		{"export docx", "выгрузи ответ в docx", domain.ActionExport, domain.ActionArgs{Format: "docx"}},
		{"export no format", "экспорт", domain.ActionExport, domain.ActionArgs{}},
		{"select", "Выбери тендер Дубровка", domain.ActionSelectStore, domain.ActionArgs{StoreName: "Дубровка"}},
		{"select quoted", `Переключись на "Митино".`, domain.ActionSelectStore, domain.ActionArgs{StoreName: "Митино"}},
		{"rename connective", "Переименуй тендер Дубровка в Дубровка 2026", domain.ActionRenameStore,
			domain.ActionArgs{OldName: "Дубровка", NewName: "Дубровка 2026"}},
		{"rename arrow", "rename store Alpha -> Beta Prime", domain.ActionRenameStore,
			domain.ActionArgs{OldName: "Alpha", NewName: "Beta Prime"}},
		{"delete", "Удалить тендер Тест", domain.ActionDeleteStore, domain.ActionArgs{StoreName: "Тест"}},
		{"question", "какие сроки подачи заявки?", domain.ActionNone, domain.ActionArgs{}},
		{"empty", "   ", domain.ActionNone, domain.ActionArgs{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, args := Infer(tt.text)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestInferIsDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		action, args := Infer("Покажи список тендеров")
		assert.Equal(t, domain.ActionListStores, action)
		assert.Equal(t, domain.ActionArgs{}, args)
	}
}

func TestRenameWithoutTarget(t *testing.T) {
	action, _ := Infer("переименуй Дубровка")
	assert.Equal(t, domain.ActionNone, action)
}

func TestTargetHint(t *testing.T) {
	assert.Equal(t, "Дубровка", TargetHint("В тендере Дубровка какие сроки?"))
	assert.Equal(t, "Митино", TargetHint("Что нужно по тендеру Митино?"))
	assert.Equal(t, "Mitino", TargetHint("deadlines in store Mitino, please"))
	assert.Equal(t, "", TargetHint("какие сроки?"))
}

func TestCleanStoreName(t *testing.T) {
	assert.Equal(t, "Дубровка", CleanStoreName(`  "Дубровка"!? `))
	assert.Equal(t, "Alpha Beta", CleanStoreName("Alpha Beta..."))
	assert.Equal(t, "", CleanStoreName(" ' "))
}

func TestExportFormat(t *testing.T) {
	assert.Equal(t, "pdf", ExportFormat("в ПДФ"))
	assert.Equal(t, "docx", ExportFormat("as Word"))
	assert.Equal(t, "", ExportFormat("как-нибудь"))
}
