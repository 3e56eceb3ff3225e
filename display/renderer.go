// Package display renders extraction lifecycle events for the terminal.
package display

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/hirewire/scout/extract"
)

// Renderer prints pretty progress to the terminal as events arrive.
// Attach it with extract.Emitter.SubscribeAll; it runs synchronously on
// the orchestration goroutine, so it keeps output cheap.
type Renderer struct {
	verbose bool
}

// NewRenderer creates a terminal event renderer.
func NewRenderer(verbose bool) *Renderer {
	return &Renderer{verbose: verbose}
}

// Handle renders one lifecycle event.
func (r *Renderer) Handle(ev extract.Event) {
	switch ev.Name {
	case extract.EventStarted:
		pterm.Printf("🔄 %s: job %v, %v applicants in %v batches\n",
			pterm.LightCyan("Extraction started"),
			ev.Data["job_id"], ev.Data["total_items"], ev.Data["total_batches"])

	case extract.EventBatchStarted:
		pterm.Printf("📦 Batch %v/%v\n",
			asInt(ev.Data["batch_index"])+1, ev.Data["total_batches"])

	case extract.EventProgress:
		mark := pterm.Green("✓")
		if success, ok := ev.Data["success"].(bool); ok && !success {
			mark = pterm.Red("✗")
		}
		pterm.Printf("  %s %v (%v/%v)\n", mark, ev.Data["source_ref"], ev.Data["cursor"], ev.Data["total"])

	case extract.EventBatchCompleted:
		if r.verbose {
			pterm.Printf("📦 Batch %v done: %v ok, %v failed\n",
				asInt(ev.Data["batch_index"])+1, ev.Data["success_count"], ev.Data["failed_count"])
		}

	case extract.EventPaused:
		pterm.Printf("⏸  %s at %v/%v\n", pterm.Yellow("Paused"), ev.Data["cursor"], ev.Data["total"])

	case extract.EventResumed:
		pterm.Printf("▶️  %s\n", pterm.LightCyan("Resumed"))

	case extract.EventCompleted:
		pterm.Printf("✅ %s: %s of %v applicants extracted\n",
			pterm.Green("Completed"),
			pterm.Green(fmt.Sprintf("%v", ev.Data["success_count"])), ev.Data["processed"])

	case extract.EventError:
		pterm.Printf("❌ %s at %v: %v (%v results preserved)\n",
			pterm.Red("Extraction failed"), ev.Data["stage"], ev.Data["error"], ev.Data["processed"])

	case extract.EventCancelled:
		pterm.Printf("🛑 %s: %v results preserved\n", pterm.Yellow("Cancelled"), ev.Data["processed"])

	case extract.EventCVDownloadStarted:
		if r.verbose {
			pterm.Printf("  ⬇️  CV for %v\n", ev.Data["source_ref"])
		}

	case extract.EventCVDownloadProgress:
		// Byte-level progress is noise on a terminal; the websocket
		// stream carries it for UIs.

	case extract.EventCVDownloadCompleted:
		if r.verbose {
			pterm.Printf("  📄 CV saved: %v\n", ev.Data["file_path"])
		}

	case extract.EventCVDownloadError:
		pterm.Printf("  ⚠️  CV download failed for %v: %v\n", ev.Data["source_ref"], ev.Data["error"])
	}
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
