package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/questboard/internal/api"
	"github.com/kalambet/questboard/internal/config"
	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/pipeline"
	"github.com/kalambet/questboard/internal/storage"
)

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Trigger a fetch from all sources, or submit quests directly",
	Long: `Trigger a fetch from all configured sources, or submit quests directly.

Examples:
  questboard ingest
  questboard ingest --last
  questboard ingest --url https://example.com/gig/1 --title "Mount a TV" --description "Brick wall, pays $80"
  questboard ingest --file ./quests.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		last, _ := cmd.Flags().GetBool("last")
		file, _ := cmd.Flags().GetString("file")
		link, _ := cmd.Flags().GetString("url")
		title, _ := cmd.Flags().GetString("title")
		desc, _ := cmd.Flags().GetString("description")
		source, _ := cmd.Flags().GetString("source")

		if (link == "") != (title == "") {
			return fmt.Errorf("--url and --title are required together")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		switch {
		case last:
			resp, err := client.get(ctx, "/ingest")
			if err != nil {
				return err
			}
			var rep pipeline.Report
			if err := decodeJSON(resp, &rep); err != nil {
				return err
			}
			return printJSON(rep)

		case file != "" || link != "":
			var quests []api.QuestInput
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading file: %w", err)
				}
				if err := json.Unmarshal(data, &quests); err != nil {
					return fmt.Errorf("parsing %s: expected a JSON array of quests: %w", file, err)
				}
			} else {
				quests = []api.QuestInput{{URL: link, Title: title, Description: desc}}
			}
			for i := range quests {
				if quests[i].Source == "" {
					quests[i].Source = source
				}
			}
			return submitQuests(ctx, client, quests)

		default:
			resp, err := client.post(ctx, "/ingest", nil)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, nil); err != nil {
				return err
			}
			printSuccess("Ingestion queued")
			return nil
		}
	},
}

func submitQuests(ctx context.Context, client *apiClient, quests []api.QuestInput) error {
	resp, err := client.post(ctx, "/quests", map[string]any{"quests": quests})
	if err != nil {
		return err
	}
	var rep pipeline.Report
	if err := decodeJSON(resp, &rep); err != nil {
		return err
	}
	printSuccess("Cached %d of %d quests (%d failed)", rep.Cached, rep.Fetched, rep.Failed)
	return nil
}

func init() {
	ingestCmd.Flags().Bool("last", false, "show the report of the last scheduled run")
	ingestCmd.Flags().String("file", "", "JSON file holding an array of quests to submit")
	ingestCmd.Flags().String("url", "", "listing URL of a single quest to submit")
	ingestCmd.Flags().String("title", "", "title of the quest to submit")
	ingestCmd.Flags().String("description", "", "description of the quest to submit")
	ingestCmd.Flags().String("source", "cli", "source tag for submitted quests")
}

// --- quests ---

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "Browse and moderate cached quests",
}

var questsListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List cached quests, or fuzzy-search titles",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{}
		if len(args) > 0 {
			params.Set("q", strings.Join(args, " "))
		}
		for _, name := range []string{"source", "region", "state", "min-difficulty", "max-difficulty"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				params.Set(strings.ReplaceAll(name, "-", "_"), v)
			}
		}
		limit, _ := cmd.Flags().GetInt("limit")
		params.Set("limit", fmt.Sprint(limit))

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/quests?"+params.Encode())
		if err != nil {
			return err
		}
		var quests []questRow
		if err := decodeJSON(resp, &quests); err != nil {
			return err
		}
		printQuests(os.Stdout, quests)
		return nil
	},
}

var questsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single quest as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/quests/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var q any
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}
		return printJSON(q)
	},
}

var questsSimilarCmd = &cobra.Command{
	Use:   "similar <id>",
	Short: "List quests from the same source with a similar difficulty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/quests/"+url.PathEscape(args[0])+"/similar")
		if err != nil {
			return err
		}
		var quests []questRow
		if err := decodeJSON(resp, &quests); err != nil {
			return err
		}
		printQuests(os.Stdout, quests)
		return nil
	},
}

func moderateCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a pending quest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(cmdContext(cmd), "/quests/"+url.PathEscape(args[0])+"/"+action, nil)
			if err != nil {
				return err
			}
			var q questRow
			if err := decodeJSON(resp, &q); err != nil {
				return err
			}
			printSuccess("Quest %s is now %s", q.ID, q.State)
			return nil
		},
	}
}

func init() {
	questsListCmd.Flags().String("source", "", "only quests from this source")
	questsListCmd.Flags().String("region", "", "only quests in this region")
	questsListCmd.Flags().String("state", "", "pending, approved or rejected")
	questsListCmd.Flags().String("min-difficulty", "", "lowest difficulty to include")
	questsListCmd.Flags().String("max-difficulty", "", "highest difficulty to include")
	questsListCmd.Flags().Int("limit", 20, "maximum number of quests to list")

	questsCmd.AddCommand(questsListCmd)
	questsCmd.AddCommand(questsShowCmd)
	questsCmd.AddCommand(questsSimilarCmd)
	questsCmd.AddCommand(moderateCmd("approve"))
	questsCmd.AddCommand(moderateCmd("reject"))
}

// --- curves ---

var curvesCmd = &cobra.Command{
	Use:   "curves",
	Short: "List learned keyword difficulty curves",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/curves"
		if category != "" {
			path += "?category=" + url.QueryEscape(category)
		}
		resp, err := client.get(cmdContext(cmd), path)
		if err != nil {
			return err
		}
		var curves []storage.DifficultyCurve
		if err := decodeJSON(resp, &curves); err != nil {
			return err
		}
		if len(curves) == 0 {
			fmt.Println("No curves learned yet.")
			return nil
		}
		for _, c := range curves {
			fmt.Printf("%-12s %-24s %.2f\n", c.Category, colorize(colorCyan, c.Keyword), c.Score)
		}
		return nil
	},
}

func init() {
	curvesCmd.Flags().String("category", "", "only curves for this source")
}

// --- gear ---

var gearCmd = &cobra.Command{
	Use:   "gear <description>",
	Short: "Suggest gear for a job description",
	Long: `Suggest gear for a job description. Runs locally against the configured
taxonomy; the server does not need to be running.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		suggester, err := buildSuggester(cfg)
		if err != nil {
			return err
		}
		printGear(suggester, strings.Join(args, " "))
		return nil
	},
}

func printGear(s *gear.Suggester, text string) {
	ranked := s.Rank(text)
	if len(ranked) == 0 {
		fmt.Println("No gear matched.")
		return
	}
	for _, label := range s.Suggest(text) {
		fmt.Printf("%s %s\n", colorize(colorGreen, "•"), label)
	}
	fmt.Println()
	for _, r := range ranked {
		fmt.Printf("  %-14s %3.0f%%  %s\n", colorize(colorBold, r.Category), r.Confidence*100, strings.Join(r.Items, ", "))
	}
}

// --- bookmarks ---

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage a user's saved quests",
}

var bookmarkUser string

var bookmarkAddCmd = &cobra.Command{
	Use:   "add <quest-id>",
	Short: "Bookmark a quest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmdContext(cmd), bookmarkPath(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Bookmarked %s for %s", args[0], bookmarkUser)
		return nil
	},
}

var bookmarkRemoveCmd = &cobra.Command{
	Use:     "rm <quest-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a bookmark",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmdContext(cmd), bookmarkPath(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Removed bookmark %s", args[0])
		return nil
	},
}

var bookmarkListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List bookmarked quests",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/users/"+url.PathEscape(bookmarkUser)+"/bookmarks")
		if err != nil {
			return err
		}
		var quests []questRow
		if err := decodeJSON(resp, &quests); err != nil {
			return err
		}
		printQuests(os.Stdout, quests)
		return nil
	},
}

func bookmarkPath(questID string) string {
	return "/users/" + url.PathEscape(bookmarkUser) + "/bookmarks/" + url.PathEscape(questID)
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

func init() {
	bookmarkCmd.PersistentFlags().StringVar(&bookmarkUser, "user", defaultUser(), "user whose bookmarks to manage")
	bookmarkCmd.AddCommand(bookmarkAddCmd)
	bookmarkCmd.AddCommand(bookmarkRemoveCmd)
	bookmarkCmd.AddCommand(bookmarkListCmd)
}

// --- prune ---

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run one maintenance pass: prune old curves, evict stale quests, backfill difficulty",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("curve-days")
		if days <= 0 {
			days = cfg.Maintenance.CurveMaxAgeDays
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		rep, err := pipeline.NewMaintainer(store, 0, days).RunOnce(cmdContext(cmd))
		printStatus("Curves pruned", "%d", rep.CurvesPruned)
		printStatus("Quests evicted", "%d", rep.QuestsEvicted)
		printStatus("Quests backfilled", "%d", rep.QuestsBackfill)
		return err
	},
}

func init() {
	pruneCmd.Flags().Int("curve-days", 0, "drop curves older than this many days (default from config)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List valid configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}
