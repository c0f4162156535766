package workflow

import "shuttle/internal/queue"

// phaseWeights are the relative progress shares of each phase. When a job
// type skips phases, the remaining weights are renormalized so progress
// still spans 0..100.
var phaseWeights = map[queue.Phase]float64{
	queue.PhaseDownloading: 40,
	queue.PhaseFiltering:   15,
	queue.PhaseOrganizing:  15,
	queue.PhaseUploading:   25,
	queue.PhaseScanning:    5,
}

var phasesByType = map[queue.Type][]queue.Phase{
	queue.TypeDownload:    {queue.PhaseDownloading, queue.PhaseUploading, queue.PhaseScanning},
	queue.TypeFilterAudio: {queue.PhaseFiltering},
	queue.TypeOrganize:    {queue.PhaseOrganizing, queue.PhaseUploading, queue.PhaseScanning},
	queue.TypeConvert:     {queue.PhaseFiltering, queue.PhaseOrganizing, queue.PhaseUploading, queue.PhaseScanning},
	queue.TypeComposite:   {queue.PhaseDownloading, queue.PhaseFiltering, queue.PhaseOrganizing, queue.PhaseUploading, queue.PhaseScanning},
}

// phasesFor returns the ordered phases a job type runs. The scanning
// phase only applies when a library scanner is configured.
func phasesFor(jobType queue.Type, scannerEnabled bool) []queue.Phase {
	phases := phasesByType[jobType]
	if scannerEnabled {
		out := make([]queue.Phase, len(phases))
		copy(out, phases)
		return out
	}
	out := make([]queue.Phase, 0, len(phases))
	for _, phase := range phases {
		if phase == queue.PhaseScanning {
			continue
		}
		out = append(out, phase)
	}
	return out
}

// band maps a phase onto its slice of the overall 0..100 progress range.
type band struct {
	phase queue.Phase
	start float64
	width float64
}

// progressBands renormalizes the phase weights over the phases that
// actually run so the last band always ends at 100.
func progressBands(phases []queue.Phase) []band {
	var total float64
	for _, phase := range phases {
		total += phaseWeights[phase]
	}
	if total <= 0 {
		return nil
	}
	bands := make([]band, 0, len(phases))
	var cursor float64
	for _, phase := range phases {
		width := phaseWeights[phase] / total * 100
		bands = append(bands, band{phase: phase, start: cursor, width: width})
		cursor += width
	}
	bands[len(bands)-1].width = 100 - bands[len(bands)-1].start
	return bands
}

func (b band) at(fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return b.start + fraction*b.width
}
