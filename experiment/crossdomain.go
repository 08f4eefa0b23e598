package experiment

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/unixpickle/anyvae/anysgd"
	"github.com/unixpickle/anyvae/dataset"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/anyvae/results"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// LoadFunc loads the training and testing sets of a named
// data set.
type LoadFunc func(name string) (train, test *dataset.Set, err error)

// CrossDomainMetrics stores one value per epoch for each
// cross-domain metric.
type CrossDomainMetrics struct {
	SourceRisk   results.Series
	TargetRisk   results.Series
	Discrepancy  results.Series
	KLDivergence results.Series
}

// WriteFiles writes every metric to the directory.
func (c *CrossDomainMetrics) WriteFiles(dir string, run int) error {
	for name, s := range map[string]results.Series{
		"SourceRisk":   c.SourceRisk,
		"TargetRisk":   c.TargetRisk,
		"Discrepancy":  c.Discrepancy,
		"KLDivergence": c.KLDivergence,
	} {
		path := filepath.Join(dir, fmt.Sprintf("CrossDomain_%s_%d.txt", name, run))
		if err := s.WriteFile(path); err != nil {
			return err
		}
	}
	return nil
}

// CrossDomain trains a source model on a sequence of
// domains, replaying its own samples from earlier
// domains, while an auxiliary model learns the held-out
// images of every domain seen so far.
type CrossDomain struct {
	Config  *Config
	Creator anyvec.Creator
	Load    LoadFunc
	Stop    <-chan struct{}
}

// Run performs every configured run and writes the
// metric files.
func (c *CrossDomain) Run() error {
	tasks, err := c.loadTasks()
	if err != nil {
		return err
	}
	for run := 0; run < c.Config.Runs; run++ {
		log.Printf("Starting run %d of %s", run, c.Config.Describe())
		metrics, model, err := c.runOnce(run, tasks)
		if err != nil {
			return essentials.AddCtx(fmt.Sprintf("run %d", run), err)
		}
		if err := metrics.WriteFiles(c.Config.ResultsDir, run); err != nil {
			return err
		}
		if err := saveCheckpoint(c.Config, run, model); err != nil {
			return err
		}
		if stopped(c.Stop) {
			log.Println("Interrupted; results so far were saved.")
			break
		}
	}
	return nil
}

// A Task is one domain in the task sequence.
type Task struct {
	Index int
	Name  string

	// Train holds the training images.
	// Test holds the held-out images, which are added to
	// the auxiliary set once the task starts.
	Train [][]float64
	Test  [][]float64
}

func (c *CrossDomain) loadTasks() ([]*Task, error) {
	var tasks []*Task
	for i, name := range c.Config.TaskNames() {
		log.Println("Loading", name, "...")
		train, test, err := c.Load(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, &Task{Index: i, Name: name, Train: train.Images, Test: test.Images})
	}
	return tasks, nil
}

func (c *CrossDomain) runOnce(run int, tasks []*Task) (*CrossDomainMetrics, *iwae.Model, error) {
	cfg := c.Config
	rng := rand.New(rand.NewSource(cfg.Seed + int64(run)))
	hidden, latent, _ := iwae.Architecture(cfg.StochasticLayers)
	model := iwae.NewModel(c.Creator, dataset.ImageSize, hidden, latent)
	model2 := iwae.NewModel(c.Creator, dataset.ImageSize, hidden, latent)
	metrics := &CrossDomainMetrics{}

	rater, _ := cfg.Schedule()
	tr2 := &iwae.Trainer{
		Model:      model2,
		Objective:  cfg.Objective,
		NumSamples: cfg.NumSamples,
		Params:     model2.Parameters(),
	}
	sgd2 := &anysgd.SGD{
		Fetcher:     tr2,
		Gradienter:  tr2,
		Transformer: newAdam(),
		BatchSize:   cfg.BatchSize,
	}
	optimizer := newAdam()

	var auxiliary [][]float64
	for _, task := range tasks {
		log.Printf("Task %d: %s", task.Index, task.Name)
		auxiliary = append(auxiliary, dataset.Binarize(task.Test, rng)...)
		current := taskImages(model, task, cfg.BatchSize)

		var auxBatches [][][]float64
		var auxShuffled [][]float64
		loop := &Loop{
			Config:      cfg,
			Creator:     c.Creator,
			Rand:        rng,
			Model:       model,
			Params:      model.Parameters(),
			Transformer: optimizer,
			BeforeEpoch: func(epoch int) {
				auxShuffled = dataset.Shuffle(auxiliary, rng)
				auxBatches = dataset.Batches(auxShuffled, cfg.BatchSize)
				sgd2.Rater = anysgd.ConstRater(rater.Rate(float64(epoch)))
			},
			AfterStep: func(idx int) error {
				if len(auxBatches) == 0 {
					return nil
				}
				batch, err := tr2.Fetch(dataset.NewSamples(c.Creator, auxBatches[idx%len(auxBatches)]))
				if err != nil {
					return err
				}
				sgd2.Step(batch, cfg.BatchSize)
				return nil
			},
			AfterEpoch: func(epoch int, images [][]float64) error {
				c.recordMetrics(metrics, model, model2, images, auxShuffled)
				log.Printf("epoch %d: source risk %.2f, target risk %.2f, discrepancy %f, KL %f",
					epoch, lastValue(metrics.SourceRisk), lastValue(metrics.TargetRisk),
					lastValue(metrics.Discrepancy), lastValue(metrics.KLDivergence))
				return nil
			},
		}
		finished, err := loop.Run(current, c.Stop)
		if err != nil {
			return nil, nil, err
		}
		if !finished {
			break
		}
	}
	return metrics, model, nil
}

// taskImages returns the training images of a task.
// After the first task, they are followed by samples from
// the model trained so far.
func taskImages(m *iwae.Model, task *Task, batchSize int) [][]float64 {
	if task.Index == 0 {
		return task.Train
	}
	generated := rehearsal(m, rehearsalCount(len(task.Train), batchSize), batchSize)
	return dataset.ConcatImages(task.Train, generated)
}

func (c *CrossDomain) recordMetrics(m *CrossDomainMetrics, model, model2 *iwae.Model,
	train, aux [][]float64) {
	cfg := c.Config
	source := headImages(train, cfg.MetricSamples)
	target := headImages(aux, cfg.MetricSamples)

	d1 := ReconstructionDiscrepancy(model, model2, source, cfg.BatchSize)
	d2 := ReconstructionDiscrepancy(model, model2, target, cfg.BatchSize)
	m.Discrepancy = append(m.Discrepancy, math.Abs(d1-d2))

	m.KLDivergence = append(m.KLDivergence,
		KLDrift(model, source, target, cfg.BatchSize, cfg.NumSamples))

	m.SourceRisk = append(m.SourceRisk, evaluateObjective(model, source, cfg))
	m.TargetRisk = append(m.TargetRisk, evaluateObjective(model, target, cfg))
}

// ReconstructionDiscrepancy averages, over the full
// batches of images, the cross-entropy between the
// reconstructions of two models.
// It is NaN if there are no full batches.
func ReconstructionDiscrepancy(m1, m2 *iwae.Model, images [][]float64, batchSize int) float64 {
	var total results.RunningMean
	for _, batch := range dataset.Batches(images, batchSize) {
		x1 := m1.Reconstruct(batch, 1)
		x2 := m2.Reconstruct(batch, 1)
		var batchMean results.RunningMean
		for i, target := range x1 {
			batchMean.Add(results.ShiftedCrossEntropy(target, x2[i]))
		}
		total.Add(batchMean.Mean())
	}
	return total.Mean()
}

// KLDrift compares the posterior KL divergence from the
// prior on two image lists, batch by batch.
// Batch pairs where either batch is empty are skipped.
func KLDrift(m *iwae.Model, source, target [][]float64, batchSize, samples int) float64 {
	var drift results.RunningMean
	for i := 0; i+batchSize <= len(source); i += batchSize {
		batch1 := source[i : i+batchSize]
		batch2 := target[min(i, len(target)):min(i+batchSize, len(target))]
		kl1 := m.Posterior(batch1, samples).MeanKL()
		kl2 := m.Posterior(batch2, samples).MeanKL()
		drift.Add(math.Abs(kl1 - kl2))
	}
	return drift.Mean()
}

func evaluateObjective(m *iwae.Model, images [][]float64, cfg *Config) float64 {
	return m.Evaluate(images, cfg.NumSamples, cfg.BatchSize)[cfg.Objective]
}

func headImages(images [][]float64, n int) [][]float64 {
	if n > len(images) {
		n = len(images)
	}
	return images[:n]
}

func lastValue(s results.Series) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

func saveCheckpoint(cfg *Config, run int, obj serializer.Serializer) error {
	if cfg.Checkpoint == "" {
		return nil
	}
	path := cfg.Checkpoint
	if cfg.Runs > 1 {
		path = fmt.Sprintf("%s.%d", path, run)
	}
	if err := serializer.SaveAny(path, obj); err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	return nil
}
