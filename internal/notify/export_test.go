package notify

import "context"

// WelcomeSubject exposes welcomeSubject to the external test package.
func WelcomeSubject() string { return welcomeSubject }

// Drain exposes drain to the external test package.
func (w *Worker) Drain(ctx context.Context) { w.drain(ctx) }
