package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"example.com/meal-planner/internal/ai"
	"example.com/meal-planner/internal/client"
	"example.com/meal-planner/internal/models"
	"example.com/meal-planner/internal/notifications"
)

const usage = `usage: mealctl [-server URL] [-token TOKEN] <command> [args]

commands:
  sync                              show last-modified timestamps
  inventory                         list ingredients
  recipes                           list recipes with availability
  availability <recipe>             check a recipe against the inventory
  confirm <recipe> <day> <meal>     plan a recipe and add missing items to the shopping list
  complete <recipe>                 mark the next planned instance as cooked
  unplan <day> <meal> <index>       remove a planned instance
  week                              show the week plan
  shopping                          show the shopping list
  add-item <id> [measure]           add a general shopping item
  buy <id> [recipe]                 move a shopping item into the inventory
  drop <recipe>                     remove a recipe from the shopping list and the week
  generate <instruction>            generate a recipe with the local model and save it
  watch                             follow realtime changes
`

func main() {
	serverURL := flag.String("server", envOr("MEAL_SERVER", "http://localhost:8080"), "planner server URL")
	token := flag.String("token", os.Getenv("MEAL_TOKEN"), "bearer token")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *serverURL, *token, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run выполняет одну команду против сервера планировщика.
func run(ctx context.Context, logger *slog.Logger, serverURL, token string, args []string, out io.Writer) error {
	if token == "" {
		return errors.New("token is required (-token or MEAL_TOKEN)")
	}
	userID, err := client.UserIDFromToken(token)
	if err != nil {
		return err
	}

	api := client.NewAPIClient(serverURL, token)
	store := client.NewStore(api, logger)
	store.SwitchUser(userID)
	planner := client.NewPlanner(store)

	command, rest := args[0], args[1:]
	switch command {
	case "sync":
		modified, err := api.Sync(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, modified)

	case "inventory":
		items, err := store.Ingredients(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tMEASURE")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.Category, item.Measure)
		}
		return w.Flush()

	case "recipes":
		recipes, err := store.Recipes(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tMISSING\tSOURCE")
		for _, recipe := range recipes {
			availability, err := planner.Availability(ctx, recipe.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", recipe.Name, availability.Status, len(availability.MissingItems), recipe.Source)
		}
		return w.Flush()

	case "availability":
		if len(rest) != 1 {
			return errors.New("usage: availability <recipe>")
		}
		availability, err := planner.Availability(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(out, availability)

	case "confirm":
		if len(rest) != 3 {
			return errors.New("usage: confirm <recipe> <day> <meal>")
		}
		availability, err := planner.ConfirmRecipe(ctx, rest[0], models.Day(strings.ToLower(rest[1])), models.Meal(strings.ToLower(rest[2])))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "planned %s (%s), %d item(s) to buy\n", rest[0], availability.Status, len(availability.MissingItems))
		return nil

	case "complete":
		if len(rest) != 1 {
			return errors.New("usage: complete <recipe>")
		}
		marked, err := planner.CompleteMeal(ctx, rest[0])
		if err != nil {
			return err
		}
		if !marked {
			fmt.Fprintf(out, "no pending instance of %s\n", rest[0])
			return nil
		}
		fmt.Fprintf(out, "marked %s as cooked\n", rest[0])
		return nil

	case "unplan":
		if len(rest) != 3 {
			return errors.New("usage: unplan <day> <meal> <index>")
		}
		var index int
		if _, err := fmt.Sscanf(rest[2], "%d", &index); err != nil {
			return fmt.Errorf("invalid index %q", rest[2])
		}
		return planner.RemoveMeal(ctx, models.Day(strings.ToLower(rest[0])), models.Meal(strings.ToLower(rest[1])), index)

	case "week":
		week, err := store.Week(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tMEAL\t#\tRECIPE\tDONE")
		for _, day := range models.Days {
			for _, meal := range models.Meals {
				slot, ok := week.Slot(day, meal)
				if !ok {
					continue
				}
				for i, planned := range *slot {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\n", day, meal, i, planned.RecipeName, planned.Completed)
				}
			}
		}
		return w.Flush()

	case "shopping":
		list, err := store.ShoppingList(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECIPE\tID\tMEASURE")
		for _, item := range list.GeneralItems {
			fmt.Fprintf(w, "-\t%s\t%s\n", item.ID, item.Measure)
		}
		for _, entry := range list.RecipeLists {
			if len(entry.Items) == 0 {
				fmt.Fprintf(w, "%s\t(nothing to buy)\t\n", entry.RecipeName)
			}
			for _, item := range entry.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\n", entry.RecipeName, item.ID, item.Measure)
			}
		}
		return w.Flush()

	case "add-item":
		if len(rest) < 1 || len(rest) > 2 {
			return errors.New("usage: add-item <id> [measure]")
		}
		item := models.Item{ID: strings.ToLower(rest[0])}
		if len(rest) == 2 {
			item.Measure = rest[1]
		}
		added, err := planner.AddGeneralItem(ctx, item)
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintf(out, "%s is already on the list\n", item.ID)
		}
		return nil

	case "buy":
		if len(rest) < 1 || len(rest) > 2 {
			return errors.New("usage: buy <id> [recipe]")
		}
		recipeName := ""
		if len(rest) == 2 {
			recipeName = rest[1]
		}
		return planner.PurchaseItem(ctx, recipeName, rest[0])

	case "drop":
		if len(rest) != 1 {
			return errors.New("usage: drop <recipe>")
		}
		return planner.RemoveFromShoppingList(ctx, rest[0])

	case "generate":
		if len(rest) == 0 {
			return errors.New("usage: generate <instruction>")
		}
		inventory, err := store.Ingredients(ctx)
		if err != nil {
			return err
		}
		held := make([]string, 0, len(inventory))
		for _, ingredient := range inventory {
			held = append(held, ingredient.ID)
		}
		sort.Strings(held)

		recipe, err := api.GenerateRecipe(ctx, ai.RecipeRequest{Instruction: strings.Join(rest, " "), Ingredients: held}, func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		if err := planner.SaveRecipe(ctx, recipe); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", recipe.Name)
		return nil

	case "watch":
		unsubscribe := store.Subscribe(func(docType models.DocumentType) {
			logger.Debug("cache updated", slog.String("doc_type", string(docType)))
		})
		defer unsubscribe()

		for _, docType := range models.DocumentTypes {
			if _, err := store.Load(ctx, docType); err != nil {
				return err
			}
		}

		return client.Watch(ctx, client.NewEventStream(api, logger), store, func(event notifications.Event) {
			if event.Type == notifications.EventDataChanged {
				fmt.Fprintf(out, "%d %s changed\n", event.Timestamp, event.DataType)
			}
		})

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// printJSON печатает значение в читаемом JSON.
func printJSON(out io.Writer, value interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
