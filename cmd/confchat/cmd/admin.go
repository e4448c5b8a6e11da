package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/welldanyogia/webrana-confchat/internal/auth"
	"github.com/welldanyogia/webrana-confchat/internal/config"
	"github.com/welldanyogia/webrana-confchat/internal/database"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"github.com/welldanyogia/webrana-confchat/internal/repository"
	"github.com/welldanyogia/webrana-confchat/internal/services"
)

// The user and paper commands work on the server's database directly and
// read the same DATABASE_URL / JWT_SECRET configuration as the server.

func init() {
	userCreateCmd.Flags().String("name", "", "display name")
	userCreateCmd.Flags().String("email", "", "e-mail address")
	userCreateCmd.Flags().String("role", string(models.RoleParticipant), "admin or participant")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCreateCmd, userTokenCmd)

	paperCreateCmd.Flags().String("title", "", "paper title")
	paperCreateCmd.Flags().String("author", "", "author id or e-mail")
	_ = paperCreateCmd.MarkFlagRequired("title")
	_ = paperCreateCmd.MarkFlagRequired("author")
	paperCmd.AddCommand(paperCreateCmd)

	rootCmd.AddCommand(userCmd, paperCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage chat users",
}

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Manage papers",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print an access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")

		return withDirectory(func(cfg *config.Config, dir *services.Directory) error {
			user, err := dir.CreateUser(cmd.Context(), name, email, models.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", user.Role, user.Name, user.ID)
			return printToken(cmd, cfg, user)
		})
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token <id-or-email>",
	Short: "Issue a fresh access token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(cfg *config.Config, dir *services.Directory) error {
			user, err := dir.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printToken(cmd, cfg, user)
		})
	},
}

var paperCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a paper for an author",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		author, _ := cmd.Flags().GetString("author")

		return withDirectory(func(_ *config.Config, dir *services.Directory) error {
			user, err := dir.GetUser(cmd.Context(), author)
			if err != nil {
				return err
			}
			paper, err := dir.CreatePaper(cmd.Context(), title, user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created paper %s (%s) by %s\n", paper.ID, paper.Title, user.Name)
			return nil
		})
	},
}

func withDirectory(fn func(*config.Config, *services.Directory) error) error {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	dir := services.NewDirectory(repository.NewUserRepository(db), repository.NewPaperRepository(db))
	return fn(cfg, dir)
}

func printToken(cmd *cobra.Command, cfg *config.Config, user *models.User) error {
	token, expires, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL).Issue(user)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token (expires %s):\n%s\n", expires.Format("2006-01-02 15:04 MST"), token)
	return nil
}
