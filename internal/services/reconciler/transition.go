package reconciler

import (
	"time"

	"github.com/mealbook/billing-reconciler/internal/models"
)

// Чистые функции перехода: событие и ничего больше определяют патч записи.
// Повторное применение того же события даёт тот же патч, поэтому повторная
// доставка безопасна без таблицы дедупликации.

// CheckoutCompletedPatch строит патч для завершённого чекаута: запись
// становится активной, фиксируются customer id и subscription id.
func CheckoutCompletedPatch(cs *models.CheckoutSession) models.RecordPatch {
	patch := models.RecordPatch{
		SubscriptionStatus: models.StrPtr(models.StatusActive),
		IsPremiumActive:    models.BoolPtr(true),
	}
	if cs.Customer != "" {
		patch.ProviderCustomerID = models.StrPtr(cs.Customer)
	}
	if cs.Subscription != "" {
		patch.SubscriptionID = models.StrPtr(cs.Subscription)
	}
	return patch
}

// SubscriptionUpdatedPatch копирует статус провайдера как есть и выводит
// флаг премиума: false для терминально-негативных статусов, иначе true.
func SubscriptionUpdatedPatch(sub *models.Subscription) models.RecordPatch {
	return models.RecordPatch{
		SubscriptionStatus: models.StrPtr(sub.Status),
		IsPremiumActive:    models.BoolPtr(premiumForStatus(sub.Status)),
	}
}

// SubscriptionDeletedPatch строит патч отмены. Премиум сохраняется до конца
// оплаченного периода, только если событие несёт cancel_at_period_end и
// конец периода ещё впереди; без данных о периоде деактивация немедленная.
func SubscriptionDeletedPatch(sub *models.Subscription, now time.Time) models.RecordPatch {
	grace := sub.CancelAtPeriodEnd &&
		sub.CurrentPeriodEnd > 0 &&
		time.Unix(sub.CurrentPeriodEnd, 0).After(now)

	return models.RecordPatch{
		SubscriptionStatus: models.StrPtr(models.StatusCanceled),
		IsPremiumActive:    models.BoolPtr(grace),
	}
}

func premiumForStatus(status string) bool {
	switch status {
	case models.StatusCanceled, models.StatusUnpaid, models.StatusPastDue:
		return false
	default:
		return true
	}
}
