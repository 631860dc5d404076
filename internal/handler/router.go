package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every endpoint handler for route registration.
type Handlers struct {
	Encounter  *EncounterHandler
	Recording  *RecordingHandler
	Audio      *AudioHandler
	Delivery   *DeliveryHandler
	Notes      *NotesHandler
	Settings   *SettingsHandler
	Paraclinic *ParaclinicHandler
	Health     *HealthHandler
}

// RegisterRoutes attaches every endpoint to the router.
func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/health", h.Health.Get)

	v1 := r.Group("/api/v1")

	v1.POST("/encounters", h.Encounter.Start)
	v1.GET("/encounters/current", h.Encounter.Current)
	v1.POST("/encounters/reset", h.Encounter.Reset)

	v1.GET("/recording", h.Recording.Session)
	v1.POST("/recording/start", h.Recording.Start)
	v1.POST("/recording/pause", h.Recording.TogglePause)
	v1.POST("/recording/stop", h.Recording.Stop)
	v1.POST("/recording/reset", h.Recording.Reset)
	v1.POST("/recording/chunks", h.Recording.PushChunk)

	v1.POST("/audio", h.Audio.Upload)
	v1.GET("/audio", h.Audio.Current)
	v1.DELETE("/audio", h.Audio.Discard)

	v1.POST("/transcriptions", h.Delivery.Transcribe)

	v1.POST("/deliveries/transcript", h.Delivery.Send)
	v1.POST("/deliveries/audio", h.Delivery.SendAudio)
	v1.GET("/deliveries/log", h.Delivery.Log)
	v1.DELETE("/deliveries/log", h.Delivery.ClearLog)

	v1.GET("/note-types", h.Notes.ListTypes)
	v1.POST("/note-types", h.Notes.AddType)
	v1.PUT("/note-types/:id", h.Notes.UpdateType)
	v1.DELETE("/note-types/:id", h.Notes.RemoveType)
	v1.POST("/note-types/reset", h.Notes.ResetTypes)

	v1.GET("/notes", h.Notes.List)
	v1.POST("/notes", h.Notes.Add)
	v1.PUT("/notes/:id", h.Notes.Update)
	v1.DELETE("/notes/:id", h.Notes.Remove)

	v1.GET("/settings/webhook", h.Settings.GetWebhook)
	v1.PUT("/settings/webhook", h.Settings.PutWebhook)
	v1.POST("/settings/webhook/test", h.Settings.TestWebhook)
	v1.DELETE("/settings/webhook", h.Settings.DeleteWebhook)

	v1.GET("/settings/transcription", h.Settings.GetTranscription)
	v1.PUT("/settings/transcription", h.Settings.PutTranscription)
	v1.POST("/settings/transcription/test", h.Settings.TestTranscription)
	v1.DELETE("/settings/transcription", h.Settings.DeleteTranscription)

	v1.GET("/settings/paraclinic", h.Settings.GetParaclinic)
	v1.PUT("/settings/paraclinic", h.Settings.PutParaclinic)
	v1.POST("/settings/paraclinic/test", h.Settings.TestParaclinic)
	v1.DELETE("/settings/paraclinic", h.Settings.DeleteParaclinic)

	v1.POST("/paraclinics", h.Paraclinic.Upload)
}
